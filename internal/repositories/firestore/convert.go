package firestore

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Firestore stores amounts as doubles, matching what the storefront writes. Conversions round to
// two places at the boundary so domain arithmetic never sees binary float noise.
const storedMoneyPlaces = 2

func decimalFromStored(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(storedMoneyPlaces)
}

func storedFromDecimal(value decimal.Decimal) float64 {
	f, _ := value.Round(storedMoneyPlaces).Float64()
	return f
}

func optionalDecimalFromStored(value *float64) *decimal.Decimal {
	if value == nil {
		return nil
	}
	d := decimalFromStored(*value)
	return &d
}

func optionalStoredFromDecimal(value *decimal.Decimal) *float64 {
	if value == nil {
		return nil
	}
	f := storedFromDecimal(*value)
	return &f
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	t := value.UTC()
	return &t
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func timeOr(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}
