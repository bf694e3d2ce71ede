package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"roster/presence-server/models"
	"roster/presence-server/services"
)

// GormCredentialStore implements services.CredentialStore on top of the
// users table.
type GormCredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

func (cs *GormCredentialStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := cs.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return services.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (cs *GormCredentialStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := cs.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}
