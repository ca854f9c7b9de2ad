package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog products. The catalog itself is managed elsewhere.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[productDocument](provider, productCollection),
	}, nil
}

// GetMany fetches products in one batched read. Missing ids are absent from the result.
func (r *ProductRepository) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	seen := make(map[string]struct{}, len(productIDs))
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	products := make(map[string]domain.Product, len(refs))
	if len(refs) == 0 {
		return products, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getMany", err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := pfirestore.Decode[productDocument](snap)
		if err != nil {
			return nil, err
		}
		products[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return products, nil
}

type productDocument struct {
	Name        string  `firestore:"name"`
	Price       float64 `firestore:"price"`
	Image       string  `firestore:"image"`
	Category    string  `firestore:"category"`
	IsAvailable *bool   `firestore:"isAvailable"`
	IsActive    *bool   `firestore:"isActive"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		Price:     decimalFromStored(d.Price),
		ImageURL:  d.Image,
		Category:  d.Category,
		Available: flagOrTrue(d.IsAvailable) && flagOrTrue(d.IsActive),
	}
}

func flagOrTrue(flag *bool) bool {
	return flag == nil || *flag
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
