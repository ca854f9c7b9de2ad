package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/repositories"
)

const favoriteCollectionPattern = "users/%s/favorites"

// FavoriteRepository persists product favorites per user, one document per product id.
type FavoriteRepository struct {
	provider *pfirestore.Provider
}

// NewFavoriteRepository constructs a Firestore-backed favorite repository.
func NewFavoriteRepository(provider *pfirestore.Provider) (*FavoriteRepository, error) {
	if provider == nil {
		return nil, errors.New("favorite repository requires firestore provider")
	}
	return &FavoriteRepository{provider: provider}, nil
}

// List returns favorites ordered by most recent addition.
func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]domain.Favorite, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs, err := pfirestore.Collect[favoriteDocument](ctx, coll.OrderBy("addedAt", firestore.Desc), "favorites.list")
	if err != nil {
		return nil, err
	}
	favorites := make([]domain.Favorite, 0, len(docs))
	for _, doc := range docs {
		productID := strings.TrimSpace(doc.Data.ProductID)
		if productID == "" {
			productID = doc.ID
		}
		favorites = append(favorites, domain.Favorite{ProductID: productID, AddedAt: doc.Data.AddedAt})
	}
	return favorites, nil
}

// Add records the favorite. Adding the same product again only refreshes addedAt.
func (r *FavoriteRepository) Add(ctx context.Context, userID string, favorite domain.Favorite) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	productID := strings.TrimSpace(favorite.ProductID)
	if productID == "" {
		return errors.New("favorite repository: product id is required")
	}
	doc := favoriteDocument{ProductID: productID, AddedAt: favorite.AddedAt.UTC()}
	if _, err := coll.Doc(productID).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("favorites.add", err)
	}
	return nil
}

// Remove deletes the favorite document.
func (r *FavoriteRepository) Remove(ctx context.Context, userID, productID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("favorite repository: product id is required")
	}
	if _, err := coll.Doc(productID).Delete(ctx); err != nil {
		return pfirestore.WrapError("favorites.remove", err)
	}
	return nil
}

func (r *FavoriteRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("favorite repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("favorite repository: user id is required")
	}
	return r.provider.Collection(ctx, fmt.Sprintf(favoriteCollectionPattern, uid))
}

type favoriteDocument struct {
	ProductID string    `firestore:"productId"`
	AddedAt   time.Time `firestore:"addedAt"`
}

var _ repositories.FavoriteRepository = (*FavoriteRepository)(nil)
