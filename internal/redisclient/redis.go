// Package redisclient opens the optional Redis connection used for rate
// limiting and readiness checks.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/todo-api/internal/config"
)

const defaultTimeout = 5 * time.Second

// ErrDisabled is returned when no address is configured.
var ErrDisabled = errors.New("redisclient: REDIS_ADDR not set")

// Connect initialises a Redis client and validates connectivity with a
// ping. On failure the client is closed and nothing is returned.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisclient: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
