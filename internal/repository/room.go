// Package repository contains the data access layer for the application.
package repository

import (
	"context"

	"limelight/internal/models"

	"gorm.io/gorm"
)

// RoomRepository defines the interface for room data operations.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uint) (*models.Room, error)
	GetByStreamKey(ctx context.Context, key string) (*models.Room, error)
	Save(ctx context.Context, room *models.Room) error
	// ListActive pages rooms that are broadcasting right now, meaning states
	// preview and live. Waiting rooms stay off the list until a manifest
	// shows up; the ingest sweep relies on this when checking liveness keys.
	ListActive(ctx context.Context, limit, offset int) ([]*models.Room, int64, error)
	ListByHost(ctx context.Context, hostID uint) ([]*models.Room, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetByStreamKey(ctx context.Context, key string) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("stream_key = ?", key).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) Save(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

func (r *roomRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.Room, int64, error) {
	var rooms []*models.Room
	var total int64

	q := r.db.WithContext(ctx).Model(&models.Room{}).
		Where("state IN ?", []models.RoomState{models.RoomStatePreview, models.RoomStateLive})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Host").
		Order("started_at DESC NULLS LAST, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	return rooms, total, err
}

func (r *roomRepository) ListByHost(ctx context.Context, hostID uint) ([]*models.Room, error) {
	var rooms []*models.Room
	err := r.db.WithContext(ctx).
		Where("host_id = ?", hostID).
		Order("created_at DESC").
		Find(&rooms).Error
	return rooms, err
}
