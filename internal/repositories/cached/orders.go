package cached

import (
	"context"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/platform/config"
	"github.com/goldenzaika/api/internal/repositories"
)

// OrderRepository caches per-user and admin order lists plus the dashboard stats. Any order write
// drops the owner's list and the admin list. Stats are left to expire.
type OrderRepository struct {
	next  repositories.OrderRepository
	cache *cache.Layer
	ttls  config.CacheConfig
}

// NewOrderRepository wraps next.
func NewOrderRepository(next repositories.OrderRepository, layer *cache.Layer, ttls config.CacheConfig) *OrderRepository {
	return &OrderRepository{next: next, cache: layer, ttls: ttls}
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order, opts repositories.CreateOrderOptions) (domain.Order, bool, error) {
	saved, replayed, err := r.next.Create(ctx, order, opts)
	if err != nil {
		return domain.Order{}, false, err
	}
	if !replayed {
		r.invalidate(ctx, saved.UserID)
	}
	return saved, replayed, nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return r.next.Get(ctx, orderID)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return cache.ReadThrough(ctx, r.cache, cache.UserOrdersKey(userID), r.ttls.OrdersTTL, func(ctx context.Context) ([]domain.Order, error) {
		return r.next.ListByUser(ctx, userID, limit)
	})
}

func (r *OrderRepository) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	return cache.ReadThrough(ctx, r.cache, cache.AdminOrdersKey, r.ttls.OrdersTTL, func(ctx context.Context) ([]domain.Order, error) {
		return r.next.ListAll(ctx, limit)
	})
}

func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	saved, err := r.next.Mutate(ctx, orderID, fn)
	if err != nil {
		return domain.Order{}, err
	}
	r.invalidate(ctx, saved.UserID)
	return saved, nil
}

func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	return cache.ReadThrough(ctx, r.cache, cache.AdminStatsKey, r.ttls.StatsTTL, r.next.Stats)
}

func (r *OrderRepository) invalidate(ctx context.Context, userID string) {
	keys := []string{cache.AdminOrdersKey}
	if userID != "" {
		keys = append(keys, cache.UserOrdersKey(userID))
	}
	r.cache.Invalidate(ctx, keys...)
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
