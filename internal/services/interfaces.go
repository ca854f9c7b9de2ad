package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderTotals        = domain.OrderTotals
	OrderStats         = domain.OrderStats
	LineItem           = domain.LineItem
	Zone               = domain.Zone
	Coupon             = domain.Coupon
	Address            = domain.Address
	Favorite           = domain.Favorite
	PaymentIntent      = domain.PaymentIntent
	UserProfile        = domain.UserProfile
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLogEntry
)

// ZoneService resolves delivery availability and manages service zones.
type ZoneService interface {
	Resolve(ctx context.Context, postalCode string, subtotal decimal.Decimal) (ZoneResolution, error)
	ListActive(ctx context.Context) ([]Zone, error)
	List(ctx context.Context) ([]Zone, error)
	Create(ctx context.Context, cmd CreateZoneCommand) (Zone, error)
	Update(ctx context.Context, cmd UpdateZoneCommand) (Zone, error)
	Delete(ctx context.Context, cmd DeleteZoneCommand) error
}

// CouponService evaluates coupon codes against a cart and manages the coupon catalogue.
type CouponService interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (CouponEvaluation, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, cmd CreateCouponCommand) (Coupon, error)
	Update(ctx context.Context, cmd UpdateCouponCommand) (Coupon, error)
	Delete(ctx context.Context, cmd DeleteCouponCommand) error
}

// OrderService owns order creation and the status lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error)
	Get(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListMine(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
	AttachIntent(ctx context.Context, cmd AttachIntentCommand) (Order, error)
	Stats(ctx context.Context) (OrderStats, error)
}

// PaymentService opens gateway intents and verifies checkout signatures.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerification, error)
}

// AddressService manages a user's address book.
type AddressService interface {
	List(ctx context.Context, userID string) ([]Address, error)
	Create(ctx context.Context, cmd CreateAddressCommand) (Address, error)
	Update(ctx context.Context, cmd UpdateAddressCommand) (Address, error)
	Delete(ctx context.Context, userID, addressID string) error
	SetDefault(ctx context.Context, userID, addressID string) error
}

// FavoriteService manages the products a user saved.
type FavoriteService interface {
	List(ctx context.Context, userID string) ([]Favorite, error)
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
}

// UserService resolves and changes user roles.
type UserService interface {
	ResolveRole(ctx context.Context, userID string) (string, error)
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	SetRole(ctx context.Context, cmd SetUserRoleCommand) (UserProfile, error)
}

// SystemService exposes operational metadata such as health and audit history.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// RoleClaimSetter mirrors role changes into the identity provider's custom claims.
type RoleClaimSetter interface {
	SetRoleClaim(ctx context.Context, uid, role string) error
}

// DomainError represents a structured error with stable codes for transport across layers.
type DomainError interface {
	error
	Code() string
	SafeMessage() string
}

// Order event types.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventCancelled     = "order.cancelled"
	OrderEventPaid          = "order.paid"
)

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Command and result definitions ---------------------------------------------

// ZoneUnavailableReason distinguishes the two ways delivery can be refused.
type ZoneUnavailableReason string

const (
	// ZoneReasonNoMatch means no active zone lists the postal code.
	ZoneReasonNoMatch ZoneUnavailableReason = "no_zone"
	// ZoneReasonBelowMinimum means the zone exists but the subtotal is under its minimum.
	ZoneReasonBelowMinimum ZoneUnavailableReason = "min_order"
)

// ZoneResolution is the outcome of a postal code lookup. Unavailable results are not errors.
type ZoneResolution struct {
	Available      bool
	Zone           *Zone
	DeliveryFee    decimal.Decimal
	MinOrderAmount *decimal.Decimal
	Reason         ZoneUnavailableReason
	Message        string
}

type CreateZoneCommand struct {
	ActorID        string
	Name           string
	PostalCodes    []string
	DeliveryFee    decimal.Decimal
	MinOrderAmount decimal.Decimal
}

// UpdateZoneCommand patches a zone; nil fields are left unchanged.
type UpdateZoneCommand struct {
	ActorID        string
	ZoneID         string
	Name           *string
	PostalCodes    []string
	DeliveryFee    *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	Active         *bool
}

type DeleteZoneCommand struct {
	ActorID string
	ZoneID  string
}

// CouponEvaluation is a successful coupon check. The discount never exceeds the subtotal.
type CouponEvaluation struct {
	Code     string
	Discount decimal.Decimal
	Coupon   Coupon
}

type CreateCouponCommand struct {
	ActorID     string
	Code        string
	Type        string
	Value       *decimal.Decimal
	MinAmount   *decimal.Decimal
	MaxDiscount *decimal.Decimal
	ExpiresAt   *time.Time
	Active      *bool
}

// UpdateCouponCommand patches a coupon; nil fields are left unchanged.
type UpdateCouponCommand struct {
	ActorID     string
	CouponID    string
	Code        *string
	Type        *string
	Value       *decimal.Decimal
	MinAmount   *decimal.Decimal
	MaxDiscount *decimal.Decimal
	ExpiresAt   *time.Time
	ClearExpiry bool
	Active      *bool
}

type DeleteCouponCommand struct {
	ActorID  string
	CouponID string
}

// CreateOrderCommand carries a checkout submission. Prices and discount reported by the client are
// advisory; the server recomputes both.
type CreateOrderCommand struct {
	UserID          string
	Items           []OrderItemInput
	ClientTotal     *decimal.Decimal
	ClientDiscount  *decimal.Decimal
	CouponCode      string
	PostalCode      string
	ShippingAddress string
	AddressID       string
	Instructions    string
	RequestToken    string
	PaymentIntentID string
}

type OrderItemInput struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	ImageURL  string
}

// OrderCreation reports the stored order and whether it was a replay of an earlier submission.
type OrderCreation struct {
	Order    Order
	Replayed bool
}

type GetOrderCommand struct {
	OrderID string
	ActorID string
	IsAdmin bool
}

type UpdateOrderStatusCommand struct {
	OrderID string
	ActorID string
	Status  string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type MarkOrderPaidCommand struct {
	OrderID   string
	Intent    PaymentIntent
	PaymentID string
	Signature string
}

type AttachIntentCommand struct {
	OrderID string
	ActorID string
	Intent  PaymentIntent
}

type CreatePaymentIntentCommand struct {
	UserID  string
	Amount  decimal.Decimal
	OrderID string
}

type VerifyPaymentCommand struct {
	UserID         string
	GatewayOrderID string
	PaymentID      string
	Signature      string
	OrderID        string
}

// PaymentVerification reports whether the checkout signature matched. A mismatch is not an error.
type PaymentVerification struct {
	Verified bool
	OrderID  string
	Order    *Order
}

type CreateAddressCommand struct {
	UserID    string
	Label     string
	Street    string
	City      string
	State     string
	Zip       string
	Phone     string
	IsDefault bool
}

// UpdateAddressCommand patches an address; nil fields are left unchanged.
type UpdateAddressCommand struct {
	UserID    string
	AddressID string
	Label     *string
	Street    *string
	City      *string
	State     *string
	Zip       *string
	Phone     *string
	IsDefault *bool
}

type SetUserRoleCommand struct {
	ActorID string
	UserID  string
	Role    string
}

// AuditLogRecord is a single operator or user action to persist.
type AuditLogRecord struct {
	Actor      string
	Action     string
	TargetRef  string
	RequestID  string
	OccurredAt time.Time
	Details    map[string]any
}

// AuditLogFilter narrows audit log listing.
type AuditLogFilter struct {
	Action     string
	Pagination Pagination
}
