package repository

import (
	"context"
	"time"

	"limelight/internal/models"

	"gorm.io/gorm"
)

// ReportRepository defines the interface for moderation report operations.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uint) (*models.Report, error)
	Save(ctx context.Context, report *models.Report) error
	List(ctx context.Context, status *models.ReportStatus, limit, offset int) ([]*models.Report, int64, error)
	// PendingCountByRoom aggregates pending reports per room for admin listings.
	PendingCountByRoom(ctx context.Context, limit, offset int) ([]models.RoomReportCount, error)
	PendingCount(ctx context.Context, roomID uint) (int64, error)
	// ResolveAllForRoom marks every pending report for a room resolved by the
	// given admin. Used by admin-ban-room with the resolveReports option.
	ResolveAllForRoom(ctx context.Context, roomID, resolverID uint) error
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) Save(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Save(report).Error
}

func (r *reportRepository) List(ctx context.Context, status *models.ReportStatus, limit, offset int) ([]*models.Report, int64, error) {
	var reports []*models.Report
	var total int64

	q := r.db.WithContext(ctx).Model(&models.Report{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error
	return reports, total, err
}

func (r *reportRepository) PendingCountByRoom(ctx context.Context, limit, offset int) ([]models.RoomReportCount, error) {
	// MAX(created_at) loses its column type on some drivers and no longer
	// scans into time.Time, so the aggregate query returns counts only and
	// the newest report per room is read back from the plain column.
	var grouped []struct {
		RoomID       uint
		PendingCount int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Select("room_id, COUNT(*) as pending_count").
		Where("status = ?", models.ReportStatusPending).
		Group("room_id").
		Order("pending_count DESC, MAX(created_at) DESC").
		Limit(limit).
		Offset(offset).
		Scan(&grouped).Error
	if err != nil {
		return nil, err
	}

	rows := make([]models.RoomReportCount, 0, len(grouped))
	for _, g := range grouped {
		var latest models.Report
		err := r.db.WithContext(ctx).
			Where("room_id = ? AND status = ?", g.RoomID, models.ReportStatusPending).
			Order("created_at DESC").
			First(&latest).Error
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.RoomReportCount{
			RoomID:       g.RoomID,
			PendingCount: g.PendingCount,
			LatestAt:     latest.CreatedAt,
		})
	}
	return rows, nil
}

func (r *reportRepository) PendingCount(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("room_id = ? AND status = ?", roomID, models.ReportStatusPending).
		Count(&count).Error
	return count, err
}

func (r *reportRepository) ResolveAllForRoom(ctx context.Context, roomID, resolverID uint) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.Report{}).
		Where("room_id = ? AND status = ?", roomID, models.ReportStatusPending).
		Updates(map[string]interface{}{
			"status":         models.ReportStatusResolved,
			"resolved_by_id": resolverID,
			"resolved_at":    now,
		}).Error
}
