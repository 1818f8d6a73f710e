package server

import (
	"github.com/gofiber/fiber/v2"

	"limelight/internal/models"
	"limelight/internal/room"
)

type createRoomRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PrivacyType string `json:"privacy_type"`
}

// CreateRoom opens a new room in the waiting state and returns it along with
// the freshly minted stream key. The key appears only in this response.
func (s *Server) CreateRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid request body"))
	}

	rm, err := s.coordinator.Create(c.UserContext(), room.CreateParams{
		HostID:      callerID(c),
		Title:       req.Title,
		Description: req.Description,
		PrivacyType: models.PrivacyType(req.PrivacyType),
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"room":       models.SnapshotOf(rm, 0, false),
		"stream_key": rm.StreamKey,
	})
}

// GetRoom returns a privacy-filtered snapshot of a room. Anonymous callers and
// non-followers of a follow-only room get the snapshot without the manifest.
func (s *Server) GetRoom(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	rm, err := s.coordinator.Get(c.UserContext(), roomID)
	if err != nil {
		return respondServiceError(c, err)
	}

	viewers := s.tracker.Count(c.UserContext(), roomID)
	return c.JSON(models.SnapshotOf(rm, viewers, s.mayView(c, rm)))
}

// mayView resolves the subscribe-time privacy rule for the current caller.
func (s *Server) mayView(c *fiber.Ctx, rm *models.Room) bool {
	caller := callerID(c)
	isFollower := false
	if caller != 0 && rm.PrivacyType == models.PrivacyFollowOnly && caller != rm.HostID {
		follows, err := s.userRepo.IsFollowing(c.UserContext(), caller, rm.HostID)
		if err == nil {
			isFollower = follows
		}
	}
	return room.CanView(rm, caller, callerCaps(c), isFollower)
}

// ListActiveRooms returns rooms currently broadcasting, in preview or live
// state. Waiting rooms are not browsable; hosts see them via GetMyRooms.
func (s *Server) ListActiveRooms(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	rooms, total, err := s.coordinator.ListActive(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	snapshots := make([]models.Snapshot, 0, len(rooms))
	for _, rm := range rooms {
		snapshots = append(snapshots,
			models.SnapshotOf(rm, s.tracker.Count(c.UserContext(), rm.ID), s.mayView(c, rm)))
	}

	return c.JSON(fiber.Map{
		"rooms":  snapshots,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GetMyRooms lists all rooms hosted by the caller, including ended ones, with
// the manifest always visible.
func (s *Server) GetMyRooms(c *fiber.Ctx) error {
	rooms, err := s.coordinator.ListByHost(c.UserContext(), callerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}

	snapshots := make([]models.Snapshot, 0, len(rooms))
	for _, rm := range rooms {
		snapshots = append(snapshots,
			models.SnapshotOf(rm, s.tracker.Count(c.UserContext(), rm.ID), true))
	}
	return c.JSON(fiber.Map{"rooms": snapshots})
}

type updateDetailsRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateRoomDetails edits the title/description of a caller-hosted room.
func (s *Server) UpdateRoomDetails(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	var req updateDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid request body"))
	}

	rm, err := s.coordinator.UpdateDetails(c.UserContext(), roomID, callerID(c), req.Title, req.Description)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(models.SnapshotOf(rm, s.tracker.Count(c.UserContext(), roomID), true))
}

type updatePrivacyRequest struct {
	PrivacyType string `json:"privacy_type"`
}

// UpdateRoomPrivacy switches a room between public and follow-only.
func (s *Server) UpdateRoomPrivacy(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	var req updatePrivacyRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid request body"))
	}

	rm, err := s.coordinator.UpdatePrivacy(c.UserContext(), roomID, callerID(c), models.PrivacyType(req.PrivacyType))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(models.SnapshotOf(rm, s.tracker.Count(c.UserContext(), roomID), true))
}

// GoLiveRoom transitions a caller-hosted room from preview to live.
func (s *Server) GoLiveRoom(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	rm, err := s.coordinator.GoLive(c.UserContext(), roomID, callerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(models.SnapshotOf(rm, s.tracker.Count(c.UserContext(), roomID), true))
}

// EndRoom ends a caller-hosted room. Ending an already-ended room is a no-op.
func (s *Server) EndRoom(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	rm, err := s.coordinator.End(c.UserContext(), roomID, callerID(c), false)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(models.SnapshotOf(rm, 0, true))
}

// ListViewers returns the current distinct viewers of a room.
func (s *Server) ListViewers(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	if _, err := s.coordinator.Get(c.UserContext(), roomID); err != nil {
		return respondServiceError(c, err)
	}

	members := s.tracker.Members(c.UserContext(), roomID)
	return c.JSON(fiber.Map{
		"viewers": members,
		"count":   len(members),
	})
}
