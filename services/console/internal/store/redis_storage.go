package store

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	pkgredis "ExtraGPTConsole/pkg/redis"
)

// DefaultRedisPrefix префикс ключей сессии в Redis
const DefaultRedisPrefix = "extragpt:console:session:"

// RedisStorage хранит сессию в Redis, каждый ключ отдельной записью без TTL
type RedisStorage struct {
	client goredis.Cmdable
	prefix string
}

// NewRedisStorage создает хранилище поверх подключенного клиента
func NewRedisStorage(client goredis.Cmdable, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

// Get возвращает значение по ключу
func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if pkgredis.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка загрузки %s из Redis: %w", key, err)
	}
	return value, true, nil
}

// Set сохраняет значение
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения %s в Redis: %w", key, err)
	}
	return nil
}

// Remove удаляет ключи
func (s *RedisStorage) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.prefix + key
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("ошибка удаления сессии из Redis: %w", err)
	}
	return nil
}
