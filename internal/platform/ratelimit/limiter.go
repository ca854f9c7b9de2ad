package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func normaliseKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}

func decide(limit int, count int64, reset time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(limit), Limit: limit, Remaining: remaining, ResetAt: reset}
}

// MemoryLimiter is the in-process fallback used when Redis is not configured.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]memoryWindow
}

type memoryWindow struct {
	count int64
	reset time.Time
}

// NewMemoryLimiter allows limit requests per key every window.
func NewMemoryLimiter(limit int, window time.Duration, clock func() time.Time) *MemoryLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{limit: limit, window: window, clock: clock, windows: make(map[string]memoryWindow)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	key = normaliseKey(key)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		w = memoryWindow{reset: now.Add(l.window)}
		l.pruneLocked(now)
	}
	w.count++
	l.windows[key] = w
	return decide(l.limit, w.count, w.reset), nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, key)
		}
	}
}

// RedisClient is the subset of go-redis used by RedisLimiter.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter shares fixed-window counters across instances with INCR and EXPIRE.
type RedisLimiter struct {
	client RedisClient
	prefix string
	limit  int
	window time.Duration
	clock  func() time.Time
}

// NewRedisLimiter builds a limiter whose keys live under "ratelimit:{tier}:".
func NewRedisLimiter(client RedisClient, tier string, limit int, window time.Duration, clock func() time.Time) *RedisLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit:" + tier + ":",
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := l.prefix + normaliseKey(key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: expire %s: %w", redisKey, err)
		}
		return decide(l.limit, count, l.clock().Add(l.window)), nil
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: ttl %s: %w", redisKey, err)
	}
	if ttl < 0 {
		// A previous EXPIRE was lost; re-arm so the key cannot live forever.
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
		ttl = l.window
	}
	return decide(l.limit, count, l.clock().Add(ttl)), nil
}
