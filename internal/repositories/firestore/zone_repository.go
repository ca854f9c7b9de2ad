package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/repositories"
)

const zoneCollection = "service_zones"

// ZoneRepository persists service zones in Firestore.
type ZoneRepository struct {
	base *pfirestore.BaseRepository[zoneDocument]
}

// NewZoneRepository constructs a Firestore-backed zone repository.
func NewZoneRepository(provider *pfirestore.Provider) (*ZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("zone repository requires firestore provider")
	}
	return &ZoneRepository{base: pfirestore.NewBaseRepository[zoneDocument](provider, zoneCollection)}, nil
}

// List returns every zone, newest first.
func (r *ZoneRepository) List(ctx context.Context) ([]domain.Zone, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	zones := make([]domain.Zone, 0, len(docs))
	for _, doc := range docs {
		zones = append(zones, doc.Data.toDomain(doc.ID))
	}
	return zones, nil
}

// Get loads a zone by id.
func (r *ZoneRepository) Get(ctx context.Context, zoneID string) (domain.Zone, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(zoneID))
	if err != nil {
		return domain.Zone{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Insert creates the zone document; the id must be new.
func (r *ZoneRepository) Insert(ctx context.Context, zone domain.Zone) error {
	return r.base.Create(ctx, zone.ID, zoneFromDomain(zone))
}

// Update overwrites an existing zone.
func (r *ZoneRepository) Update(ctx context.Context, zone domain.Zone) error {
	doc := zoneFromDomain(zone)
	return r.base.Update(ctx, zone.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "pincodes", Value: doc.Pincodes},
		{Path: "deliveryFee", Value: doc.DeliveryFee},
		{Path: "minOrderAmount", Value: doc.MinOrderAmount},
		{Path: "isActive", Value: doc.IsActive},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

// Delete removes the zone.
func (r *ZoneRepository) Delete(ctx context.Context, zoneID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(zoneID))
}

type zoneDocument struct {
	Name           string    `firestore:"name"`
	Pincodes       []string  `firestore:"pincodes"`
	DeliveryFee    float64   `firestore:"deliveryFee"`
	MinOrderAmount float64   `firestore:"minOrderAmount"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func zoneFromDomain(zone domain.Zone) zoneDocument {
	codes := make([]string, 0, len(zone.PostalCodes))
	for _, code := range zone.PostalCodes {
		if trimmed := strings.TrimSpace(code); trimmed != "" {
			codes = append(codes, trimmed)
		}
	}
	return zoneDocument{
		Name:           strings.TrimSpace(zone.Name),
		Pincodes:       codes,
		DeliveryFee:    storedFromDecimal(zone.DeliveryFee),
		MinOrderAmount: storedFromDecimal(zone.MinOrderAmount),
		IsActive:       zone.Active,
		CreatedAt:      zone.CreatedAt.UTC(),
		UpdatedAt:      zone.UpdatedAt.UTC(),
	}
}

func (d zoneDocument) toDomain(id string) domain.Zone {
	return domain.Zone{
		ID:             id,
		Name:           d.Name,
		PostalCodes:    append([]string(nil), d.Pincodes...),
		DeliveryFee:    decimalFromStored(d.DeliveryFee),
		MinOrderAmount: decimalFromStored(d.MinOrderAmount),
		Active:         d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

var _ repositories.ZoneRepository = (*ZoneRepository)(nil)
