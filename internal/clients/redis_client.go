package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the go-redis flavour of the remote cache store, for deployments
// that expose a redis:// URL instead of a Valkey address.
type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[RedisClient] failed to ping Redis: %w", err)
	}

	slog.Info("[RedisClient] Successfully connected to redis",
		slog.String("address", opt.Addr))
	return &RedisClient{client: client}, nil
}

// GetBytes returns (nil, nil) when the key does not exist.
func (rc *RedisClient) GetBytes(ctx context.Context, key string) ([]byte, error) {
	b, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (rc *RedisClient) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisClient) Close() {
	if err := rc.client.Close(); err != nil {
		slog.Warn("[RedisClient] Close failed", slog.String("error", err.Error()))
	}
}
