package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/persistence"
)

// RedisKV stores draft snapshots in Redis
type RedisKV struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisKV connects to Redis and checks the connection
func NewRedisKV(cfg config.RedisConfig) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return NewRedisKVFromClient(client, cfg.KeyPrefix, cfg.SnapshotTTL), nil
}

// NewRedisKVFromClient wraps an existing client. A zero ttl keeps keys
// until they are removed.
func NewRedisKVFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, prefix: prefix, ttl: ttl}
}

// Get retrieves a value
func (c *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, persistence.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get value from Redis")
	}
	return data, nil
}

// Set stores a value, refreshing its expiration
func (c *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Remove deletes a value. Deleting a missing key is not an error.
func (c *RedisKV) Remove(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete value from Redis")
	}
	return nil
}

// Ping reports whether Redis is reachable
func (c *RedisKV) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisKV) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
