package repositories

import "fmt"

// SettlementErrorCode enumerates reasons an order cannot be settled against a payment intent.
type SettlementErrorCode string

const (
	// SettlementIntentMissing indicates the intent record does not exist.
	SettlementIntentMissing SettlementErrorCode = "intent_missing"
	// SettlementIntentNotVerified indicates the intent has not passed signature verification.
	SettlementIntentNotVerified SettlementErrorCode = "intent_not_verified"
	// SettlementIntentConsumed indicates another order already settled against the intent.
	SettlementIntentConsumed SettlementErrorCode = "intent_consumed"
)

// SettlementError reports a failed intent precondition detected inside the order transaction.
type SettlementError struct {
	Code     SettlementErrorCode
	IntentID string
}

// Error implements the error interface.
func (e *SettlementError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("settle intent %s: %s", e.IntentID, e.Code)
}

// NewSettlementError constructs a typed settlement error.
func NewSettlementError(code SettlementErrorCode, intentID string) *SettlementError {
	return &SettlementError{Code: code, IntentID: intentID}
}
