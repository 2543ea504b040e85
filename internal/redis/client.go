package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
)

// NewRedisClient connects with the configured credentials and fails unless the
// server answers a PING within ctx.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		// Lock calls must give up well before the lock itself expires.
		ReadTimeout:  min(2*time.Second, cfg.LockTTL/2),
		WriteTimeout: min(2*time.Second, cfg.LockTTL/2),
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	return rdb, nil
}

// Ping adapts the client to a readiness probe.
func Ping(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
