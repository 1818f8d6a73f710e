package repository

import (
	"context"

	"limelight/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines the interface for the identity records this subsystem reads.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// IsFollowing reports whether follower follows followee. Consulted at
	// subscribe time for follow_only rooms.
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error
	return count > 0, err
}
