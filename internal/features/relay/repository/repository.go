package repository

import (
	"context"
	"errors"

	"support-bot-backend/internal/features/relay/models"
)

var ErrNotFound = errors.New("message record not found")

type MessageRepository interface {
	// Save inserts or replaces the correlation record for (UserID, MessageID).
	Save(ctx context.Context, rec *models.MessageRecord) error
	GetByUserMessage(ctx context.Context, userID, messageID int64) (*models.MessageRecord, error)
	// GetByTopicMessage resolves the admin-side message back to its origin.
	GetByTopicMessage(ctx context.Context, topicMessageID int64) (*models.MessageRecord, error)
	UpdateText(ctx context.Context, userID, messageID int64, text string) error
}
