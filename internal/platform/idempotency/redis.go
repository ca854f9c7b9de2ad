package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "idempotency:"
	redisExpiryKey = "idempotency:expiry"
)

// RedisClient is the subset of go-redis used by RedisStore.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
}

// RedisStore keeps each record as a JSON string with a native TTL and indexes expiry times in a
// sorted set so CleanupExpired can purge entries whose TTL was lost or extended.
type RedisStore struct {
	client RedisClient
}

// NewRedisStore wraps client.
func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := redisKeyPrefix + recordID(key)
	record := pendingRecord(key, fingerprint, now, ttl)

	// Two attempts cover the window where the existing record expires between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		data, err := json.Marshal(record)
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
		}
		created, err := s.client.SetNX(ctx, id, data, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			s.index(ctx, id, record.ExpiresAt)
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}

		existing, found, err := s.load(ctx, id)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return reservationFor(existing, fingerprint)
		}
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := redisKeyPrefix + recordID(key)

	record, found, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if found && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !found {
		record = Record{Key: key, Fingerprint: fingerprint}
	}
	record = completeRecord(record, resp, now, ttl)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, id, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	s.index(ctx, id, record.ExpiresAt)
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	id := redisKeyPrefix + recordID(key)
	if err := s.client.Del(ctx, id).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	_ = s.client.ZRem(ctx, redisExpiryKey, id).Err()
	return nil
}

func (s *RedisStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UTC().Unix(), 10)}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, redisExpiryKey, opt).Result()
	if err != nil {
		return 0, fmt.Errorf("idempotency: list expired: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, ids...).Err(); err != nil {
		return 0, fmt.Errorf("idempotency: delete expired: %w", err)
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.client.ZRem(ctx, redisExpiryKey, members...).Err(); err != nil {
		return 0, fmt.Errorf("idempotency: trim expiry index: %w", err)
	}
	return len(ids), nil
}

func (s *RedisStore) load(ctx context.Context, id string) (Record, bool, error) {
	data, err := s.client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}

// index failures only delay cleanup; the record still carries its own TTL.
func (s *RedisStore) index(ctx context.Context, id string, expiresAt time.Time) {
	_ = s.client.ZAdd(ctx, redisExpiryKey, redis.Z{Score: float64(expiresAt.Unix()), Member: id}).Err()
}
