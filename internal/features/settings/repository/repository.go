package repository

import "context"

// SettingsRepository is the durable key->value config table.
type SettingsRepository interface {
	// GetAll loads the whole table; the service layer caches it.
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
