package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"support-bot-backend/internal/features/settings/repository"
)

const keyPrefix = "config:"

type settingsRepository struct {
	client *redis.Client
}

func NewSettingsRepository(client *redis.Client) repository.SettingsRepository {
	return &settingsRepository{client: client}
}

func (r *settingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		values[strings.TrimPrefix(key, keyPrefix)] = val
	}
	return values, iter.Err()
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, keyPrefix+key, value, 0).Err()
}

func (r *settingsRepository) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}
