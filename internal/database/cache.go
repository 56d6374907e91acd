package database

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent or caching is off
var ErrCacheMiss = errors.New("cache miss")

// Cache is a small Redis key/value cache. A Cache without a client misses
// on every Get and drops every Set.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a Redis client; client may be nil
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Set sets cache with expiration
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get gets cache value
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrCacheMiss
	}
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

// Delete deletes cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
