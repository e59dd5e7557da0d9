// Package cache provides the byte-level read-through cache used by
// store.CachedStore, with in-memory and Redis backends.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/buyer-universe/internal/config"
)

// Cache stores opaque values by key with a TTL.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// New builds the cache selected by cfg.Driver. It returns nil for "none" or
// an empty driver so callers can skip the caching layer entirely.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "cache: connect redis at %s", cfg.RedisAddr)
		}
		return NewRedis(rdb), nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
