package repositories

import (
	"context"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ZoneRepository persists service zones.
type ZoneRepository interface {
	List(ctx context.Context) ([]domain.Zone, error)
	Get(ctx context.Context, zoneID string) (domain.Zone, error)
	Insert(ctx context.Context, zone domain.Zone) error
	Update(ctx context.Context, zone domain.Zone) error
	Delete(ctx context.Context, zoneID string) error
}

// CouponRepository persists coupons. Codes are unique across the collection.
type CouponRepository interface {
	List(ctx context.Context) ([]domain.Coupon, error)
	Get(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	Delete(ctx context.Context, couponID string) error
}

// OrderRepository persists orders and their status history.
type OrderRepository interface {
	// Create writes order atomically with the optional request token reservation and intent settlement.
	// A token that was already used returns the original order with replayed=true.
	Create(ctx context.Context, order domain.Order, opts CreateOrderOptions) (saved domain.Order, replayed bool, err error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	ListAll(ctx context.Context, limit int) ([]domain.Order, error)
	// Mutate reads the order in a transaction, applies fn, and writes the result unless fn fails.
	Mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// PaymentIntentRepository persists gateway intents keyed by the gateway's id.
type PaymentIntentRepository interface {
	Insert(ctx context.Context, intent domain.PaymentIntent) error
	Get(ctx context.Context, intentID string) (domain.PaymentIntent, error)
	Mutate(ctx context.Context, intentID string, fn func(*domain.PaymentIntent) error) (domain.PaymentIntent, error)
}

// AddressRepository persists a user's address book. At most one address per user is the default.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID, addressID string) (domain.Address, error)
	// Save upserts address; when it is the default every other default is cleared in the same transaction.
	Save(ctx context.Context, userID string, address domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID, addressID string) error
	SetDefault(ctx context.Context, userID, addressID string, at time.Time) error
}

// FavoriteRepository tracks the products a user saved.
type FavoriteRepository interface {
	List(ctx context.Context, userID string) ([]domain.Favorite, error)
	Add(ctx context.Context, userID string, favorite domain.Favorite) error
	Remove(ctx context.Context, userID, productID string) error
}

// ProductRepository is the read-only catalog port.
type ProductRepository interface {
	GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// UserRepository reads and updates user profiles.
type UserRepository interface {
	Get(ctx context.Context, userID string) (domain.UserProfile, error)
	// Role returns the stored role, or the default user role when no profile exists.
	Role(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID, role string, at time.Time) error
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CreateOrderOptions carries the idempotency and settlement inputs of an order write.
type CreateOrderOptions struct {
	RequestToken    string
	ConsumeIntentID string
}

// AuditLogFilter narrows audit log listing.
type AuditLogFilter struct {
	Action     string
	Pagination domain.Pagination
}
