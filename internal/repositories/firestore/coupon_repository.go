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
	"github.com/goldenzaika/api/internal/platform/textutil"
	"github.com/goldenzaika/api/internal/repositories"
)

const couponCollection = "coupons"

// CouponRepository persists coupons. Code uniqueness is checked inside a transaction because
// documents are keyed by generated ids rather than by code.
type CouponRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[couponDocument](provider, couponCollection),
	}, nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		coupons = append(coupons, doc.Data.toDomain(doc.ID))
	}
	return coupons, nil
}

// Get loads a coupon by document id.
func (r *CouponRepository) Get(ctx context.Context, couponID string) (domain.Coupon, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(couponID))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode looks up a coupon by its upper-cased code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	normalized := textutil.UpperCode(code)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NotFound("coupons.findByCode", fmt.Errorf("coupon %q not found", normalized))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// Insert creates coupon, failing with a conflict when the code is taken.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	docRef, err := r.base.DocumentRef(ctx, coupon.ID)
	if err != nil {
		return err
	}
	doc := couponFromDomain(coupon)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := r.ensureCodeFree(ctx, tx, doc.Code, ""); err != nil {
			return err
		}
		return tx.Create(docRef, doc)
	})
	return pfirestore.WrapError("coupons.insert", err)
}

// Update overwrites an existing coupon. Renaming onto a code held by another coupon conflicts.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	docRef, err := r.base.DocumentRef(ctx, coupon.ID)
	if err != nil {
		return err
	}
	doc := couponFromDomain(coupon)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(docRef); err != nil {
			return err
		}
		if err := r.ensureCodeFree(ctx, tx, doc.Code, coupon.ID); err != nil {
			return err
		}
		return tx.Set(docRef, doc)
	})
	return pfirestore.WrapError("coupons.update", err)
}

// Delete removes the coupon.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(couponID))
}

func (r *CouponRepository) ensureCodeFree(ctx context.Context, tx *firestore.Transaction, code, selfID string) error {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return err
	}
	snaps, err := tx.Documents(coll.Where("code", "==", code).Limit(2)).GetAll()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		if snap.Ref.ID != selfID {
			return pfirestore.Conflict("coupons.code", fmt.Errorf("coupon code %q already exists", code))
		}
	}
	return nil
}

type couponDocument struct {
	Code        string     `firestore:"code"`
	Type        string     `firestore:"type"`
	Value       float64    `firestore:"value"`
	MinAmount   float64    `firestore:"minAmount"`
	MaxDiscount *float64   `firestore:"maxDiscount"`
	Expiry      *time.Time `firestore:"expiry"`
	IsActive    bool       `firestore:"isActive"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func couponFromDomain(coupon domain.Coupon) couponDocument {
	doc := couponDocument{
		Code:        textutil.UpperCode(coupon.Code),
		Type:        string(coupon.Type),
		Value:       storedFromDecimal(coupon.Value),
		MaxDiscount: optionalStoredFromDecimal(coupon.MaxDiscount),
		Expiry:      cloneTime(coupon.ExpiresAt),
		IsActive:    coupon.Active,
		CreatedAt:   coupon.CreatedAt.UTC(),
		UpdatedAt:   coupon.UpdatedAt.UTC(),
	}
	if coupon.MinAmount != nil {
		doc.MinAmount = storedFromDecimal(*coupon.MinAmount)
	}
	return doc
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	coupon := domain.Coupon{
		ID:          id,
		Code:        d.Code,
		Type:        domain.CouponType(d.Type),
		Value:       decimalFromStored(d.Value),
		MaxDiscount: optionalDecimalFromStored(d.MaxDiscount),
		ExpiresAt:   cloneTime(d.Expiry),
		Active:      d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.MinAmount > 0 {
		floor := decimalFromStored(d.MinAmount)
		coupon.MinAmount = &floor
	}
	return coupon
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
