package service

import (
	"context"

	"support-bot-backend/internal/platform/telegram"
)

// Gateway is the slice of the Bot API the relay consumes. *telegram.Client
// satisfies it; tests substitute a fake.
type Gateway interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	SendPhoto(ctx context.Context, req telegram.SendPhotoRequest) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, chatID, fromChatID, messageID, threadID int64) (*telegram.Message, error)
	CopyMessage(ctx context.Context, req telegram.CopyMessageRequest) (*telegram.MessageID, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*telegram.ForumTopic, error)
	EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	PinChatMessage(ctx context.Context, chatID, messageID, threadID int64) error
	GetUserProfilePhotos(ctx context.Context, userID int64, limit int) (*telegram.UserProfilePhotos, error)
}

// Settings is the read side of the config table the relay needs.
type Settings interface {
	Get(ctx context.Context, key string) string
}
