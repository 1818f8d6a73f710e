package repository

import (
	"context"
	"time"

	"limelight/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HostBanRepository defines the interface for host-level livestreaming bans.
type HostBanRepository interface {
	Upsert(ctx context.Context, ban *models.HostBan) error
	Remove(ctx context.Context, userID uint) error
	IsBanned(ctx context.Context, userID uint) (bool, error)
	List(ctx context.Context) ([]*models.HostBan, error)
}

type hostBanRepository struct {
	db *gorm.DB
}

// NewHostBanRepository creates a new host ban repository.
func NewHostBanRepository(db *gorm.DB) HostBanRepository {
	return &hostBanRepository{db: db}
}

func (r *hostBanRepository) Upsert(ctx context.Context, ban *models.HostBan) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"banned_by_id": ban.BannedByID,
			"reason":       ban.Reason,
			"created_at":   time.Now().UTC(),
		}),
	}).Create(ban).Error
}

func (r *hostBanRepository) Remove(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.HostBan{}).Error
}

func (r *hostBanRepository) IsBanned(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.HostBan{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

func (r *hostBanRepository) List(ctx context.Context) ([]*models.HostBan, error) {
	var bans []*models.HostBan
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("created_at DESC").
		Find(&bans).Error
	return bans, err
}
