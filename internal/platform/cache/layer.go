package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Layer is the fail-open JSON facade over a Store. Backend and codec failures are logged at warn
// and reported to callers as a miss; they never abort the operation that triggered them.
// A nil *Layer behaves as an always-missing cache.
type Layer struct {
	store  Store
	logger *zap.Logger
}

// NewLayer wraps store. A nil logger discards output.
func NewLayer(store Store, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{store: store, logger: logger.Named("cache")}
}

// GetJSON decodes the entry at key into dest and reports whether it was a usable hit.
func (l *Layer) GetJSON(ctx context.Context, key string, dest any) bool {
	if l == nil || l.store == nil {
		return false
	}
	data, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			l.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		l.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON stores value under key for ttl.
func (l *Layer) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if l == nil || l.store == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		l.logger.Warn("cache entry unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.store.Set(ctx, key, data, ttl); err != nil {
		l.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate deletes keys. Callers invoke it before answering the write that made them stale.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) {
	if l == nil || l.store == nil || len(keys) == 0 {
		return
	}
	if err := l.store.Delete(ctx, keys...); err != nil {
		l.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// Ping probes the backend for health reporting.
func (l *Layer) Ping(ctx context.Context) error {
	if l == nil || l.store == nil {
		return errors.New("cache: not configured")
	}
	return l.store.Ping(ctx)
}

// ReadThrough returns the cached value at key or loads, caches, and returns it. Load errors are
// returned untouched and nothing is cached for them.
func ReadThrough[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if l.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.SetJSON(ctx, key, value, ttl)
	return value, nil
}
