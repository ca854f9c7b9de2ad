// Package cached decorates repositories with read-through caching. Each decorator owns its cache
// keys: reads fill them and every successful write invalidates them before returning, so a caller
// never reads its own stale write back.
package cached

import (
	"context"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/repositories"
)

// ZoneRepository caches the full zone list under the shared admin key.
type ZoneRepository struct {
	next  repositories.ZoneRepository
	cache *cache.Layer
	ttl   time.Duration
}

// NewZoneRepository wraps next.
func NewZoneRepository(next repositories.ZoneRepository, layer *cache.Layer, ttl time.Duration) *ZoneRepository {
	return &ZoneRepository{next: next, cache: layer, ttl: ttl}
}

func (r *ZoneRepository) List(ctx context.Context) ([]domain.Zone, error) {
	return cache.ReadThrough(ctx, r.cache, cache.AdminZonesKey, r.ttl, r.next.List)
}

func (r *ZoneRepository) Get(ctx context.Context, zoneID string) (domain.Zone, error) {
	return r.next.Get(ctx, zoneID)
}

func (r *ZoneRepository) Insert(ctx context.Context, zone domain.Zone) error {
	if err := r.next.Insert(ctx, zone); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.AdminZonesKey)
	return nil
}

func (r *ZoneRepository) Update(ctx context.Context, zone domain.Zone) error {
	if err := r.next.Update(ctx, zone); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.AdminZonesKey)
	return nil
}

func (r *ZoneRepository) Delete(ctx context.Context, zoneID string) error {
	if err := r.next.Delete(ctx, zoneID); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.AdminZonesKey)
	return nil
}

var _ repositories.ZoneRepository = (*ZoneRepository)(nil)
