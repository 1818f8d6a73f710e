// Package moderation implements the report intake and admin workflow.
package moderation

import (
	"context"
	"errors"
	"time"

	"limelight/internal/events"
	"limelight/internal/models"
	"limelight/internal/observability"
	"limelight/internal/repository"
	"limelight/internal/room"

	"gorm.io/gorm"
)

// Service mediates viewer reports and the admin actions they can trigger.
type Service struct {
	reports  repository.ReportRepository
	hostBans repository.HostBanRepository
	rooms    *room.Coordinator
	pub      events.Publisher
	modlog   *observability.ModerationLogger
}

// NewService wires a moderation Service around the room coordinator.
func NewService(
	reports repository.ReportRepository,
	hostBans repository.HostBanRepository,
	rooms *room.Coordinator,
	pub events.Publisher,
) *Service {
	return &Service{
		reports:  reports,
		hostBans: hostBans,
		rooms:    rooms,
		pub:      pub,
		modlog:   observability.NewModerationLogger(),
	}
}

// SubmitReport files a report against a room and notifies the admin channel
// with the room's updated pending count. Reports are never deduplicated.
func (s *Service) SubmitReport(ctx context.Context, roomID, reporterID uint, reason models.ReportReason, description string) (*models.Report, error) {
	if !models.ValidReportReason(reason) {
		return nil, models.NewValidationError("unknown report reason")
	}
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}

	report := &models.Report{
		RoomID:      roomID,
		ReporterID:  reporterID,
		Reason:      reason,
		Description: description,
		Status:      models.ReportStatusPending,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, models.NewInternalError(err)
	}

	pending, err := s.reports.PendingCount(ctx, roomID)
	if err != nil {
		// The report is committed; the admin notice just loses its count.
		pending = 0
	}

	s.pub.PublishAdmin(events.TypeAdminNewReport, events.AdminNewReportPayload{
		ReportID:     report.ID,
		RoomID:       roomID,
		Reason:       string(reason),
		PendingCount: pending,
	})
	return report, nil
}

// ResolveReport marks a report resolved. Re-resolving is a no-op.
func (s *Service) ResolveReport(ctx context.Context, reportID, adminID uint) (*models.Report, error) {
	return s.closeReport(ctx, reportID, adminID, models.ReportStatusResolved)
}

// DismissReport marks a report dismissed. Re-dismissing is a no-op.
func (s *Service) DismissReport(ctx context.Context, reportID, adminID uint) (*models.Report, error) {
	return s.closeReport(ctx, reportID, adminID, models.ReportStatusDismissed)
}

func (s *Service) closeReport(ctx context.Context, reportID, adminID uint, status models.ReportStatus) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("report", reportID)
		}
		return nil, models.NewInternalError(err)
	}
	if report.Status != models.ReportStatusPending {
		return report, nil
	}

	now := time.Now().UTC()
	report.Status = status
	report.ResolvedByID = &adminID
	report.ResolvedAt = &now
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.modlog.LogAction(ctx, "report_"+string(status), adminID, map[string]interface{}{
		"report_id": report.ID,
		"room_id":   report.RoomID,
	})
	return report, nil
}

// ListReports returns reports, optionally filtered by status.
func (s *Service) ListReports(ctx context.Context, status *models.ReportStatus, limit, offset int) ([]*models.Report, int64, error) {
	reports, total, err := s.reports.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return reports, total, nil
}

// ReportedRooms returns the per-room pending report aggregates for the admin view.
func (s *Service) ReportedRooms(ctx context.Context, limit, offset int) ([]models.RoomReportCount, error) {
	rows, err := s.reports.PendingCountByRoom(ctx, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

// AdminEndRoom ends a room regardless of who hosts it.
func (s *Service) AdminEndRoom(ctx context.Context, roomID, adminID uint, caps models.Capability) (*models.Room, error) {
	if !caps.Has(models.CapEndAnyRoom) {
		return nil, models.NewForbiddenError("insufficient capability")
	}
	r, err := s.rooms.End(ctx, roomID, adminID, true)
	if err != nil {
		return nil, err
	}
	s.modlog.LogAction(ctx, "admin_end_room", adminID, map[string]interface{}{
		"room_id": roomID,
	})
	return r, nil
}

// BanRoomOptions selects the side effects of AdminBanRoom.
type BanRoomOptions struct {
	// ResolveReports marks every pending report for the room resolved.
	ResolveReports bool `json:"resolve_reports"`
	// BanHost inserts a host-level livestreaming ban for the room's host.
	BanHost bool `json:"ban_host"`
}

// AdminBanRoom flags a room banned, forcing it to end if it is still
// broadcasting, with optional report cleanup and host ban.
func (s *Service) AdminBanRoom(ctx context.Context, roomID, adminID uint, caps models.Capability, reason string, opts BanRoomOptions) (*models.Room, error) {
	if !caps.Has(models.CapBanRoom) {
		return nil, models.NewForbiddenError("insufficient capability")
	}
	if opts.BanHost && !caps.Has(models.CapBanHost) {
		return nil, models.NewForbiddenError("insufficient capability to ban the host")
	}

	r, err := s.rooms.Ban(ctx, roomID, adminID, reason)
	if err != nil {
		return nil, err
	}

	if opts.ResolveReports {
		if err := s.reports.ResolveAllForRoom(ctx, roomID, adminID); err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	if opts.BanHost {
		ban := &models.HostBan{UserID: r.HostID, BannedByID: adminID, Reason: reason}
		if err := s.hostBans.Upsert(ctx, ban); err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	s.modlog.LogAction(ctx, "admin_ban_room", adminID, map[string]interface{}{
		"room_id":         roomID,
		"reason":          reason,
		"resolve_reports": opts.ResolveReports,
		"ban_host":        opts.BanHost,
	})
	return r, nil
}

// AdminUnbanHost lifts a host-level livestreaming ban. Unbanning a host who
// is not banned is a no-op.
func (s *Service) AdminUnbanHost(ctx context.Context, userID, adminID uint, caps models.Capability) error {
	if !caps.Has(models.CapBanHost) {
		return models.NewForbiddenError("insufficient capability")
	}
	if err := s.hostBans.Remove(ctx, userID); err != nil {
		return models.NewInternalError(err)
	}
	s.modlog.LogAction(ctx, "admin_unban_host", adminID, map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

// ListBannedHosts returns all active host-level bans.
func (s *Service) ListBannedHosts(ctx context.Context, caps models.Capability) ([]*models.HostBan, error) {
	if !caps.Has(models.CapBanHost) {
		return nil, models.NewForbiddenError("insufficient capability")
	}
	bans, err := s.hostBans.List(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return bans, nil
}
