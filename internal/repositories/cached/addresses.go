package cached

import (
	"context"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/repositories"
)

// AddressRepository caches each user's address book.
type AddressRepository struct {
	next  repositories.AddressRepository
	cache *cache.Layer
	ttl   time.Duration
}

// NewAddressRepository wraps next.
func NewAddressRepository(next repositories.AddressRepository, layer *cache.Layer, ttl time.Duration) *AddressRepository {
	return &AddressRepository{next: next, cache: layer, ttl: ttl}
}

func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	return cache.ReadThrough(ctx, r.cache, cache.UserAddressesKey(userID), r.ttl, func(ctx context.Context) ([]domain.Address, error) {
		return r.next.List(ctx, userID)
	})
}

func (r *AddressRepository) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	return r.next.Get(ctx, userID, addressID)
}

func (r *AddressRepository) Save(ctx context.Context, userID string, address domain.Address) (domain.Address, error) {
	saved, err := r.next.Save(ctx, userID, address)
	if err != nil {
		return domain.Address{}, err
	}
	r.cache.Invalidate(ctx, cache.UserAddressesKey(userID))
	return saved, nil
}

func (r *AddressRepository) Delete(ctx context.Context, userID, addressID string) error {
	if err := r.next.Delete(ctx, userID, addressID); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.UserAddressesKey(userID))
	return nil
}

func (r *AddressRepository) SetDefault(ctx context.Context, userID, addressID string, at time.Time) error {
	if err := r.next.SetDefault(ctx, userID, addressID, at); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.UserAddressesKey(userID))
	return nil
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
