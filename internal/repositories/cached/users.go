package cached

import (
	"context"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/repositories"
)

// UserRepository caches the bare role string per user. Role changes invalidate synchronously so
// a demoted operator loses access on the next request.
type UserRepository struct {
	next  repositories.UserRepository
	cache *cache.Layer
	ttl   time.Duration
}

// NewUserRepository wraps next.
func NewUserRepository(next repositories.UserRepository, layer *cache.Layer, ttl time.Duration) *UserRepository {
	return &UserRepository{next: next, cache: layer, ttl: ttl}
}

func (r *UserRepository) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	return r.next.Get(ctx, userID)
}

func (r *UserRepository) Role(ctx context.Context, userID string) (string, error) {
	return cache.ReadThrough(ctx, r.cache, cache.UserRoleKey(userID), r.ttl, func(ctx context.Context) (string, error) {
		return r.next.Role(ctx, userID)
	})
}

func (r *UserRepository) SetRole(ctx context.Context, userID, role string, at time.Time) error {
	if err := r.next.SetRole(ctx, userID, role, at); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.UserRoleKey(userID))
	return nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)
