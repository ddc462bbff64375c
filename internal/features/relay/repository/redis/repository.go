package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"support-bot-backend/internal/features/relay/models"
	"support-bot-backend/internal/features/relay/repository"
)

type messageRepository struct {
	client *redis.Client
}

func NewMessageRepository(client *redis.Client) repository.MessageRepository {
	return &messageRepository{client: client}
}

func messageKey(userID, messageID int64) string {
	return fmt.Sprintf("msg:%d:%d", userID, messageID)
}

func topicMessageKey(topicMessageID int64) string {
	return fmt.Sprintf("topicmsg:%d", topicMessageID)
}

// Save stores the record under both lookup directions.
func (r *messageRepository) Save(ctx context.Context, rec *models.MessageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, messageKey(rec.UserID, rec.MessageID), data, 0)
	if rec.TopicMessageID != 0 {
		pipe.Set(ctx, topicMessageKey(rec.TopicMessageID), data, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *messageRepository) get(ctx context.Context, key string) (*models.MessageRecord, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.MessageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *messageRepository) GetByUserMessage(ctx context.Context, userID, messageID int64) (*models.MessageRecord, error) {
	return r.get(ctx, messageKey(userID, messageID))
}

func (r *messageRepository) GetByTopicMessage(ctx context.Context, topicMessageID int64) (*models.MessageRecord, error) {
	return r.get(ctx, topicMessageKey(topicMessageID))
}

func (r *messageRepository) UpdateText(ctx context.Context, userID, messageID int64, text string) error {
	rec, err := r.GetByUserMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	rec.Text = text
	return r.Save(ctx, rec)
}
