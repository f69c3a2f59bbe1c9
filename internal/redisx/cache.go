package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache adapts the redis client to the marker-key surface the reconciliation
// engine uses. Errors are swallowed: the durable tables stay authoritative
// and a missed Del only means a stale read until the TTL expires.
type Cache struct{ R *redis.Client }

func (c *Cache) Exists(ctx context.Context, key string) bool {
	ok, err := Exists(ctx, c.R, key)
	return err == nil && ok
}

func (c *Cache) Set(ctx context.Context, key string, ttl time.Duration) {
	_ = c.R.Set(ctx, key, "1", ttl).Err()
}

func (c *Cache) Del(ctx context.Context, key string) {
	_ = c.R.Del(ctx, key).Err()
}
