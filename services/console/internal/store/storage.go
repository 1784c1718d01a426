// Package store хранит данные сессии между запусками консоли.
package store

import (
	"context"
)

// Ключи сессии
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
	KeyBusinessID   = "business_id"
)

// SessionKeys все ключи сессии
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser, KeyBusinessID}

// Storage долговременное key/value хранилище сессии
type Storage interface {
	// Get возвращает значение и признак его наличия
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}
