package server

import (
	"github.com/gofiber/fiber/v2"

	"limelight/internal/models"
	"limelight/internal/moderation"
)

// ListReports returns moderation reports, optionally filtered by status.
func (s *Server) ListReports(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	var status *models.ReportStatus
	if raw := c.Query("status"); raw != "" {
		st := models.ReportStatus(raw)
		switch st {
		case models.ReportStatusPending, models.ReportStatusResolved, models.ReportStatusDismissed:
			status = &st
		default:
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("unknown report status"))
		}
	}

	reports, total, err := s.modService.ListReports(c.UserContext(), status, p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"reports": reports,
		"total":   total,
		"limit":   p.Limit,
		"offset":  p.Offset,
	})
}

// ReportedRooms aggregates pending reports per room, most reported first.
func (s *Server) ReportedRooms(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	rooms, err := s.modService.ReportedRooms(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

// ResolveReport closes a pending report as resolved.
func (s *Server) ResolveReport(c *fiber.Ctx) error {
	reportID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	report, err := s.modService.ResolveReport(c.UserContext(), reportID, callerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(report)
}

// DismissReport closes a pending report as dismissed.
func (s *Server) DismissReport(c *fiber.Ctx) error {
	reportID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	report, err := s.modService.DismissReport(c.UserContext(), reportID, callerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(report)
}

// AdminEndRoom force-ends a room regardless of who hosts it.
func (s *Server) AdminEndRoom(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	rm, err := s.modService.AdminEndRoom(c.UserContext(), roomID, callerID(c), callerCaps(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(models.SnapshotOf(rm, 0, true))
}

type adminBanRoomRequest struct {
	Reason string `json:"reason"`
	moderation.BanRoomOptions
}

// AdminBanRoom flags a room banned, optionally resolving its pending reports
// and banning its host from creating new rooms.
func (s *Server) AdminBanRoom(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	var req adminBanRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid request body"))
	}

	rm, err := s.modService.AdminBanRoom(c.UserContext(), roomID, callerID(c), callerCaps(c),
		req.Reason, req.BanRoomOptions)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(models.SnapshotOf(rm, 0, true))
}

// AdminUnbanHost lifts a host-level livestreaming ban.
func (s *Server) AdminUnbanHost(c *fiber.Ctx) error {
	userID, ok := parseID(c, "userId")
	if !ok {
		return nil
	}

	if err := s.modService.AdminUnbanHost(c.UserContext(), userID, callerID(c), callerCaps(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListBannedHosts returns all active host-level bans.
func (s *Server) ListBannedHosts(c *fiber.Ctx) error {
	bans, err := s.modService.ListBannedHosts(c.UserContext(), callerCaps(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"bans": bans})
}

// AdminListActiveRooms lists active rooms with moderation fields visible,
// bypassing privacy filtering.
func (s *Server) AdminListActiveRooms(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	rooms, total, err := s.coordinator.ListActive(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	snapshots := make([]models.Snapshot, 0, len(rooms))
	for _, rm := range rooms {
		snapshots = append(snapshots,
			models.SnapshotOf(rm, s.tracker.Count(c.UserContext(), rm.ID), true))
	}
	return c.JSON(fiber.Map{
		"rooms":  snapshots,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}
