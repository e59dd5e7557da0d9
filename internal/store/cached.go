package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/cache"
	"github.com/sells-group/buyer-universe/internal/model"
)

// CachedStore wraps a Store with a read-through cache for trackers, buyers
// and deals keyed by entity ID. Writes go to the store first and then
// invalidate the affected keys. Cache failures are logged, never returned.
type CachedStore struct {
	Store
	cache  cache.Cache
	prefix string
	ttl    time.Duration
}

// NewCached wraps s. A nil cache returns s unchanged.
func NewCached(s Store, c cache.Cache, prefix string, ttl time.Duration) Store {
	if c == nil {
		return s
	}
	return &CachedStore{Store: s, cache: c, prefix: prefix, ttl: ttl}
}

func (s *CachedStore) key(entity, id string) string {
	return s.prefix + entity + ":" + id
}

// readThrough serves an entity from the cache, or loads it and fills the
// cache on a miss.
func readThrough[T any](ctx context.Context, s *CachedStore, entity, id string, load func() (*T, error)) (*T, error) {
	key := s.key(entity, id)
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		zap.L().Warn("store: cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return &v, nil
		}
		zap.L().Warn("store: dropping corrupt cache entry", zap.String("key", key))
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			zap.L().Warn("store: cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		zap.L().Warn("store: cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *CachedStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	return readThrough(ctx, s, "tracker", id, func() (*model.Tracker, error) {
		return s.Store.GetTracker(ctx, id)
	})
}

func (s *CachedStore) UpdateTracker(ctx context.Context, t *model.Tracker) error {
	err := s.Store.UpdateTracker(ctx, t)
	s.invalidate(ctx, s.key("tracker", t.ID))
	return err
}

// DeleteTracker also drops the cached children the cascade removes.
func (s *CachedStore) DeleteTracker(ctx context.Context, id string) error {
	keys := []string{s.key("tracker", id)}
	if buyers, err := s.Store.ListBuyers(ctx, id); err == nil {
		for _, b := range buyers {
			keys = append(keys, s.key("buyer", b.ID))
		}
	}
	if deals, err := s.Store.ListDeals(ctx, id); err == nil {
		for _, d := range deals {
			keys = append(keys, s.key("deal", d.ID))
		}
	}
	err := s.Store.DeleteTracker(ctx, id)
	s.invalidate(ctx, keys...)
	return err
}

func (s *CachedStore) GetBuyer(ctx context.Context, id string) (*model.Buyer, error) {
	return readThrough(ctx, s, "buyer", id, func() (*model.Buyer, error) {
		return s.Store.GetBuyer(ctx, id)
	})
}

func (s *CachedStore) UpdateBuyer(ctx context.Context, b *model.Buyer) error {
	err := s.Store.UpdateBuyer(ctx, b)
	s.invalidate(ctx, s.key("buyer", b.ID))
	return err
}

func (s *CachedStore) DeleteBuyer(ctx context.Context, id string) error {
	err := s.Store.DeleteBuyer(ctx, id)
	s.invalidate(ctx, s.key("buyer", id))
	return err
}

func (s *CachedStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	return readThrough(ctx, s, "deal", id, func() (*model.Deal, error) {
		return s.Store.GetDeal(ctx, id)
	})
}

func (s *CachedStore) UpdateDeal(ctx context.Context, d *model.Deal) error {
	err := s.Store.UpdateDeal(ctx, d)
	s.invalidate(ctx, s.key("deal", d.ID))
	return err
}

func (s *CachedStore) DeleteDeal(ctx context.Context, id string) error {
	err := s.Store.DeleteDeal(ctx, id)
	s.invalidate(ctx, s.key("deal", id))
	return err
}

// Close closes the cache and the underlying store.
func (s *CachedStore) Close() error {
	if err := s.cache.Close(); err != nil {
		zap.L().Warn("store: close cache", zap.Error(err))
	}
	return s.Store.Close()
}
