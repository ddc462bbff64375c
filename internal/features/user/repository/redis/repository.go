package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"support-bot-backend/internal/features/user/models"
	"support-bot-backend/internal/features/user/repository"
)

type userRepository struct {
	client *redis.Client
}

func NewUserRepository(client *redis.Client) repository.UserRepository {
	return &userRepository{client: client}
}

func userKey(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

func topicKey(topicID int64) string {
	return fmt.Sprintf("user_topic:%d", topicID)
}

func (r *userRepository) GetOrCreate(ctx context.Context, id int64) (*models.User, error) {
	key := userKey(id)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		// First contact: conditional insert so concurrent creators converge
		// on a single record.
		def := models.NewUser(id)
		defJSON, merr := json.Marshal(def)
		if merr != nil {
			return nil, merr
		}
		if err := r.client.SetNX(ctx, key, defJSON, 0).Err(); err != nil {
			return nil, err
		}
		data, err = r.client.Get(ctx, key).Bytes()
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	// Keep the topic->user index in sync with the stored record.
	var prevTopic int64
	if data, err := r.client.Get(ctx, userKey(user.ID)).Bytes(); err == nil {
		var prev models.User
		if json.Unmarshal(data, &prev) == nil {
			prevTopic = prev.TopicID
		}
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, userKey(user.ID), userJSON, 0).Err(); err != nil {
		return err
	}

	if prevTopic != 0 && prevTopic != user.TopicID {
		if err := r.client.Del(ctx, topicKey(prevTopic)).Err(); err != nil {
			return err
		}
	}
	if user.TopicID != 0 {
		if err := r.client.Set(ctx, topicKey(user.TopicID), user.ID, 0).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *userRepository) FindByTopicID(ctx context.Context, topicID int64) (*models.User, error) {
	id, err := r.client.Get(ctx, topicKey(topicID)).Int64()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, userKey(id)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	// Stale index entries can survive a topic reset; only trust a live match.
	if user.TopicID != topicID {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}
