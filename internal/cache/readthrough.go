package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ReadThrough serves JSON values from the Store and collapses concurrent
// misses for the same key into one load. Store failures degrade to the loader.
type ReadThrough struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.EngineMetrics
	group   singleflight.Group
}

func NewReadThrough(store Store, log *zap.Logger, m *metrics.EngineMetrics) *ReadThrough {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReadThrough{
		store:   store,
		log:     log.Named("cache"),
		metrics: m,
	}
}

// Lookup decodes key into dst and reports whether it was present.
func (r *ReadThrough) Lookup(ctx context.Context, name, key string, dst any) bool {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("cache.get.failed", zap.String("cache", name), zap.Error(err))
		return false
	}
	if ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			r.log.Warn("cache.decode.failed", zap.String("cache", name), zap.Error(err))
			ok = false
		}
	}
	r.metrics.IncCacheLookup(name, ok)
	return ok
}

// Put stores value under key. Failures are logged and swallowed.
func (r *ReadThrough) Put(ctx context.Context, name, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.log.Warn("cache.encode.failed", zap.String("cache", name), zap.Error(err))
		return
	}
	if err := r.store.Set(ctx, key, raw, ttl); err != nil {
		r.log.Warn("cache.set.failed", zap.String("cache", name), zap.Error(err))
	}
}

// Invalidate removes keys. Failures are logged and swallowed; entries expire on their own.
func (r *ReadThrough) Invalidate(ctx context.Context, keys ...string) {
	if err := r.store.Delete(ctx, keys...); err != nil {
		r.log.Warn("cache.invalidate.failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// Get returns the cached value for key or loads, caches and returns it.
// ttl computes the entry lifetime from the loaded value; a zero ttl skips caching.
func Get[T any](ctx context.Context, r *ReadThrough, name, key string, ttl func(T) time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if r.Lookup(ctx, name, key, &cached) {
		return cached, nil
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		if d := ttl(loaded); d > 0 {
			r.Put(ctx, name, key, loaded, d)
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// Fixed returns a ttl func that always yields d.
func Fixed[T any](d time.Duration) func(T) time.Duration {
	return func(T) time.Duration { return d }
}
