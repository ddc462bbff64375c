package repository

import (
	"context"
	"errors"

	"support-bot-backend/internal/features/user/models"
)

var ErrNotFound = errors.New("user not found")

type UserRepository interface {
	// GetOrCreate reads the record for id, inserting the default one on first contact.
	GetOrCreate(ctx context.Context, id int64) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	// FindByTopicID resolves the owner of an admin-group topic.
	FindByTopicID(ctx context.Context, topicID int64) (*models.User, error)
}
