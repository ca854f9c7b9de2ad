package cached

import (
	"context"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/repositories"
)

// FavoriteRepository caches favorites already joined with their products. Favorites whose
// product no longer exists are dropped from the listing.
type FavoriteRepository struct {
	next     repositories.FavoriteRepository
	products repositories.ProductRepository
	cache    *cache.Layer
	ttl      time.Duration
}

// NewFavoriteRepository wraps next. A nil products repository skips enrichment.
func NewFavoriteRepository(next repositories.FavoriteRepository, products repositories.ProductRepository, layer *cache.Layer, ttl time.Duration) *FavoriteRepository {
	return &FavoriteRepository{next: next, products: products, cache: layer, ttl: ttl}
}

func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]domain.Favorite, error) {
	return cache.ReadThrough(ctx, r.cache, cache.UserFavoritesKey(userID), r.ttl, func(ctx context.Context) ([]domain.Favorite, error) {
		return r.load(ctx, userID)
	})
}

func (r *FavoriteRepository) load(ctx context.Context, userID string) ([]domain.Favorite, error) {
	favorites, err := r.next.List(ctx, userID)
	if err != nil || r.products == nil || len(favorites) == 0 {
		return favorites, err
	}
	ids := make([]string, 0, len(favorites))
	for _, fav := range favorites {
		ids = append(ids, fav.ProductID)
	}
	products, err := r.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	enriched := make([]domain.Favorite, 0, len(favorites))
	for _, fav := range favorites {
		product, ok := products[fav.ProductID]
		if !ok {
			continue
		}
		fav.Product = &product
		enriched = append(enriched, fav)
	}
	return enriched, nil
}

func (r *FavoriteRepository) Add(ctx context.Context, userID string, favorite domain.Favorite) error {
	if err := r.next.Add(ctx, userID, favorite); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.UserFavoritesKey(userID))
	return nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, productID string) error {
	if err := r.next.Remove(ctx, userID, productID); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.UserFavoritesKey(userID))
	return nil
}

var _ repositories.FavoriteRepository = (*FavoriteRepository)(nil)
