package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Order captures the persisted order record. Line items and the shipping address are snapshots taken
// at checkout and never follow later catalog or address book edits.
type Order struct {
	ID              string
	UserID          string
	Items           []LineItem
	Totals          OrderTotals
	CouponCode      *string
	ShippingAddress ShippingAddress
	Instructions    string
	Status          OrderStatus
	Payment         *OrderPayment
	RequestToken    string
	CancelReason    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessingAt    *time.Time
	DispatchedAt    *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// LineItem freezes the product reference, price, and quantity at the time of ordering.
type LineItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	ImageURL  string
}

// Amount returns the line total.
func (l LineItem) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ShippingAddress is the denormalised delivery address stored on an order.
type ShippingAddress struct {
	Text    string
	Details *Address
}

// OrderPayment records the gateway references once an intent is opened and verified.
type OrderPayment struct {
	IntentID   string
	PaymentID  string
	Signature  string
	Amount     int64
	Currency   string
	Status     PaymentStatus
	VerifiedAt *time.Time
	RefundID   string
}

// PaymentStatus tracks the gateway side of an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates an intent was opened but not yet verified.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway signature was verified.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded indicates a refund was issued after cancellation.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Paid reports whether the order carries a verified payment.
func (o Order) Paid() bool {
	return o.Payment != nil && o.Payment.Status == PaymentStatusPaid
}

// PaymentIntentStatus tracks an intent through verification and settlement onto an order.
type PaymentIntentStatus string

const (
	// PaymentIntentCreated is recorded when the gateway opens the intent.
	PaymentIntentCreated PaymentIntentStatus = "created"
	// PaymentIntentVerified is recorded once the checkout signature checks out.
	PaymentIntentVerified PaymentIntentStatus = "verified"
	// PaymentIntentConsumed is recorded when an order is settled against the intent. It cannot be reused.
	PaymentIntentConsumed PaymentIntentStatus = "consumed"
	// PaymentIntentRefunded is recorded when a captured payment could not settle its order and was
	// returned. It cannot be reused.
	PaymentIntentRefunded PaymentIntentStatus = "refunded"
)

// PaymentIntent is the server side record of a gateway intent, keyed by the gateway's id. It is the
// trusted link between what the caller paid and the order that payment settles.
type PaymentIntent struct {
	ID         string
	UserID     string
	OrderID    string
	Amount     int64
	Currency   string
	Receipt    string
	Status     PaymentIntentStatus
	PaymentID  string
	Signature  string
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// Zone groups serviced postal codes under a shared delivery fee and minimum order amount.
type Zone struct {
	ID             string
	Name           string
	PostalCodes    []string
	DeliveryFee    decimal.Decimal
	MinOrderAmount decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Serves reports whether the zone is active and lists the postal code.
func (z Zone) Serves(postalCode string) bool {
	if !z.Active {
		return false
	}
	for _, code := range z.PostalCodes {
		if code == postalCode {
			return true
		}
	}
	return false
}

// CouponType enumerates discount computation modes.
type CouponType string

const (
	// CouponTypePercentage discounts a share of the subtotal, optionally capped.
	CouponTypePercentage CouponType = "percentage"
	// CouponTypeFlat discounts a fixed amount.
	CouponTypeFlat CouponType = "flat"
)

// Coupon is a redeemable discount rule keyed by its normalised code.
type Coupon struct {
	ID          string
	Code        string
	Type        CouponType
	Value       decimal.Decimal
	MinAmount   *decimal.Decimal
	MaxDiscount *decimal.Decimal
	ExpiresAt   *time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Address represents an entry in a user's address book.
type Address struct {
	ID        string
	Label     string
	Street    string
	City      string
	State     string
	Zip       string
	Phone     string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Favorite ties a user to a product.
type Favorite struct {
	ProductID string
	AddedAt   time.Time
	Product   *Product
}

// Product is the read-only catalog projection used for price snapshots and favorites enrichment.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	ImageURL  string
	Category  string
	Available bool
}

// Role names understood by the API.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserProfile is the subset of the user document the API reads and writes.
type UserProfile struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderStats summarises order volume for the admin dashboard.
type OrderStats struct {
	TotalOrders   int
	TotalRevenue  decimal.Decimal
	ActiveUsers   int
	PendingOrders int
	GeneratedAt   time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry records an operator or user action against a target document.
type AuditLogEntry struct {
	ID        string
	Actor     string
	Action    string
	TargetRef string
	Details   map[string]any
	RequestID string
	CreatedAt time.Time
}
