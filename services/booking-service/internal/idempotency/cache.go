// Package idempotency keeps booking outcomes cheap to replay: a Redis
// read-through cache in front of the idempotency table and a sweeper that
// deletes expired records.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "detailbook:idem:"

// RedisClient is the subset of go-redis the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type RedisCache struct {
	client RedisClient
	prefix string
}

func NewRedisCache(client RedisClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get returns ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores payload for ttl, which callers derive from the record's
// remaining lifetime so the cache never outlives the table.
func (c *RedisCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.prefix+key, payload, ttl).Err()
}
