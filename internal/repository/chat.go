package repository

import (
	"context"
	"time"

	"limelight/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for chat message and chat ban operations.
type ChatRepository interface {
	CreateMessage(ctx context.Context, msg *models.RoomMessage) error
	GetMessage(ctx context.Context, id uint) (*models.RoomMessage, error)
	GetHistory(ctx context.Context, roomID uint, limit, offset int) ([]*models.RoomMessage, error)
	// SoftDelete flags a message as deleted and cascades the flag to its direct
	// replies (one level only).
	SoftDelete(ctx context.Context, msgID uint) error

	UpsertBan(ctx context.Context, ban *models.ChatBan) error
	RemoveBan(ctx context.Context, hostID, userID uint) error
	IsBanned(ctx context.Context, hostID, userID uint) (bool, error)
	ListBans(ctx context.Context, hostID uint) ([]*models.ChatBan, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.RoomMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) GetMessage(ctx context.Context, id uint) (*models.RoomMessage, error) {
	var msg models.RoomMessage
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *chatRepository) GetHistory(ctx context.Context, roomID uint, limit, offset int) ([]*models.RoomMessage, error) {
	var messages []*models.RoomMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Preload("Author").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse messages to return them in chronological order (oldest -> newest).
	// We fetched DESC to get the latest page, but callers expect ASC.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) SoftDelete(ctx context.Context, msgID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RoomMessage{}).
			Where("id = ?", msgID).
			Update("deleted", true).Error; err != nil {
			return err
		}
		// One level of replies only; grandchildren keep their flag.
		return tx.Model(&models.RoomMessage{}).
			Where("parent_id = ?", msgID).
			Update("deleted", true).Error
	})
}

func (r *chatRepository) UpsertBan(ctx context.Context, ban *models.ChatBan) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "host_id"},
			{Name: "user_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"banned_by_id": ban.BannedByID,
			"reason":       ban.Reason,
			"updated_at":   time.Now().UTC(),
		}),
	}).Create(ban).Error
}

func (r *chatRepository) RemoveBan(ctx context.Context, hostID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("host_id = ? AND user_id = ?", hostID, userID).
		Delete(&models.ChatBan{}).Error
}

func (r *chatRepository) IsBanned(ctx context.Context, hostID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatBan{}).
		Where("host_id = ? AND user_id = ?", hostID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *chatRepository) ListBans(ctx context.Context, hostID uint) ([]*models.ChatBan, error) {
	var bans []*models.ChatBan
	err := r.db.WithContext(ctx).
		Where("host_id = ?", hostID).
		Preload("User").
		Order("created_at DESC").
		Find(&bans).Error
	return bans, err
}
