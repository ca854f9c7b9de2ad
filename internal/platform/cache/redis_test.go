package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubRedis struct {
	getFn  func(ctx context.Context, key string) *redis.StringCmd
	setFn  func(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	delFn  func(ctx context.Context, keys ...string) *redis.IntCmd
	pingFn func(ctx context.Context) *redis.StatusCmd
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	return s.getFn(ctx, key)
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	return s.setFn(ctx, key, value, ttl)
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return s.delFn(ctx, keys...)
}

func (s *stubRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return s.pingFn(ctx)
}

func TestRedisStoreGetMapsNilToMiss(t *testing.T) {
	store := NewRedisStore(&stubRedis{
		getFn: func(context.Context, string) *redis.StringCmd {
			return redis.NewStringResult("", redis.Nil)
		},
	})
	if _, err := store.Get(context.Background(), "admin:zones:all"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestRedisStoreGetReturnsBackendError(t *testing.T) {
	store := NewRedisStore(&stubRedis{
		getFn: func(context.Context, string) *redis.StringCmd {
			return redis.NewStringResult("", errors.New("connection refused"))
		},
	})
	_, err := store.Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestRedisStoreSetAndDelete(t *testing.T) {
	var gotKey string
	var gotTTL time.Duration
	var deleted []string
	store := NewRedisStore(&stubRedis{
		setFn: func(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.StatusCmd {
			gotKey, gotTTL = key, ttl
			return redis.NewStatusResult("OK", nil)
		},
		delFn: func(_ context.Context, keys ...string) *redis.IntCmd {
			deleted = append(deleted, keys...)
			return redis.NewIntResult(int64(len(keys)), nil)
		},
	})
	ctx := context.Background()
	if err := store.Set(ctx, "orders:user:u1", []byte("[]"), 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if gotKey != "orders:user:u1" || gotTTL != 5*time.Minute {
		t.Fatalf("unexpected set args %s %s", gotKey, gotTTL)
	}
	if err := store.Delete(ctx, "orders:user:u1", AdminOrdersKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(deleted) != 2 || deleted[1] != AdminOrdersKey {
		t.Fatalf("unexpected deleted keys %v", deleted)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("empty delete should be a no-op: %v", err)
	}
}

func TestKeyNames(t *testing.T) {
	cases := map[string]string{
		UserOrdersKey("u1"):    "orders:user:u1",
		UserAddressesKey("u1"): "user:u1:addresses",
		UserFavoritesKey("u1"): "user:u1:favorites",
		UserRoleKey("u1"):      "user:role:u1",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}
