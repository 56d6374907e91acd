package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether key may act again within its window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// Release drops the mark Allow set, so key may act again at once
	Release(ctx context.Context, key string) error
}

// RedisRateLimiter allows one action per key per window
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisRateLimiter creates a limiter storing its marks under prefix
func NewRedisRateLimiter(client *redis.Client, prefix string, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix, window: window}
}

// Allow sets the rate limit mark and reports whether it was absent
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.window <= 0 {
		return true, nil
	}
	return r.client.SetNX(ctx, r.key(key), "1", r.window).Result()
}

// Release deletes the rate limit mark
func (r *RedisRateLimiter) Release(ctx context.Context, key string) error {
	if r.window <= 0 {
		return nil
	}
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisRateLimiter) key(key string) string {
	return fmt.Sprintf("rate_limit:%s:%s", r.prefix, key)
}
