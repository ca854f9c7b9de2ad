package payments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ParseCurrency validates an ISO 4217 code and returns it upper-cased.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return unit.String(), nil
}

// ToMinorUnits converts a major unit amount (₹499.50) into the gateway's integer minor units (49950).
// Fractions below the currency's smallest unit are rounded half away from zero.
func ToMinorUnits(amount decimal.Decimal, code string) (int64, error) {
	scale, err := minorScale(code)
	if err != nil {
		return 0, err
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	minor := amount.Shift(scale).Round(0)
	if !minor.IsPositive() {
		return 0, fmt.Errorf("%w: %s rounds to zero", ErrInvalidAmount, amount.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts gateway minor units back to a major unit amount.
func FromMinorUnits(minor int64, code string) (decimal.Decimal, error) {
	scale, err := minorScale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -scale), nil
}

// NewReceipt returns a unique receipt label used as the gateway idempotency key.
func NewReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func minorScale(code string) (int32, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}
