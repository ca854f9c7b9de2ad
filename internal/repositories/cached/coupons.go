package cached

import (
	"context"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/repositories"
)

// CouponRepository caches the admin coupon list. Code lookups always go to the store so a
// deactivated coupon stops applying as soon as the write lands.
type CouponRepository struct {
	next  repositories.CouponRepository
	cache *cache.Layer
	ttl   time.Duration
}

// NewCouponRepository wraps next.
func NewCouponRepository(next repositories.CouponRepository, layer *cache.Layer, ttl time.Duration) *CouponRepository {
	return &CouponRepository{next: next, cache: layer, ttl: ttl}
}

func (r *CouponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	return cache.ReadThrough(ctx, r.cache, cache.AdminCouponsKey, r.ttl, r.next.List)
}

func (r *CouponRepository) Get(ctx context.Context, couponID string) (domain.Coupon, error) {
	return r.next.Get(ctx, couponID)
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return r.next.FindByCode(ctx, code)
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if err := r.next.Insert(ctx, coupon); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.AdminCouponsKey)
	return nil
}

func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if err := r.next.Update(ctx, coupon); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.AdminCouponsKey)
	return nil
}

func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	if err := r.next.Delete(ctx, couponID); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.AdminCouponsKey)
	return nil
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
