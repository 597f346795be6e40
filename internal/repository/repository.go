// Package repository содержит реализации локального хранилища состояния гостя.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound возвращается, если по ключу ничего не сохранено.
var ErrNotFound = errors.New("key not found")

// Store описывает хранилище значений по ключу, аналог локального хранилища устройства.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options содержит параметры, общие для всех реализаций хранилища.
type Options struct {
	// TTL ограничивает время жизни записей там, где хранилище это поддерживает.
	TTL time.Duration
}

// Open создаёт хранилище по DSN. Поддерживаются схемы memory, file, redis и postgres.
func Open(ctx context.Context, dsn string, opts Options) (Store, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("storage dsn %q: missing scheme", dsn)
	}

	switch scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(rest)
	case "redis", "rediss":
		redisOpts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStore(client, opts.TTL), nil
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("storage dsn: unsupported scheme %q", scheme)
	}
}
