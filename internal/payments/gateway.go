package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states reported by a gateway.
type Status string

const (
	// StatusPending indicates the intent awaits customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway captured the payment.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the intent was cancelled or can no longer succeed.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the captured amount was returned in full.
	StatusRefunded Status = "refunded"
)

var (
	// ErrInvalidAmount is returned for non-positive or unrepresentable amounts.
	ErrInvalidAmount = errors.New("payments: invalid amount")
	// ErrUnsupportedCurrency is returned for codes that are not ISO 4217.
	ErrUnsupportedCurrency = errors.New("payments: unsupported currency")
)

// IntentRequest opens a payment intent for an amount in minor units.
type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Metadata map[string]string
}

// Intent is the gateway side record the client completes checkout against.
type Intent struct {
	ID           string
	Amount       int64
	Currency     string
	Receipt      string
	Status       Status
	ClientSecret string
	CreatedAt    time.Time
}

// RefundRequest returns a captured payment, optionally partially.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

// Gateway is the payment service provider contract.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupIntent(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (Intent, error)
}
