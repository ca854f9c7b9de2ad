package payments

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{amount: "499.50", currency: "INR", want: 49950},
		{amount: "0.015", currency: "INR", want: 2},
		{amount: "1200", currency: "JPY", want: 1200},
		{amount: "10", currency: "usd", want: 1000},
	}
	for _, tc := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		if err != nil {
			t.Fatalf("ToMinorUnits(%s %s): %v", tc.amount, tc.currency, err)
		}
		if got != tc.want {
			t.Fatalf("ToMinorUnits(%s %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestToMinorUnitsRejectsInvalid(t *testing.T) {
	for _, amount := range []string{"0", "-5", "0.001"} {
		if _, err := ToMinorUnits(decimal.RequireFromString(amount), "INR"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if _, err := ToMinorUnits(decimal.NewFromInt(1), "RUPEES"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestFromMinorUnits(t *testing.T) {
	got, err := FromMinorUnits(49950, "INR")
	if err != nil {
		t.Fatalf("FromMinorUnits: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("499.5")) {
		t.Fatalf("unexpected amount %s", got)
	}
}

func TestNewReceipt(t *testing.T) {
	a, b := NewReceipt(), NewReceipt()
	if a == b {
		t.Fatalf("expected unique receipts")
	}
	if !strings.HasPrefix(a, "rcpt_") || len(a) > 40 {
		t.Fatalf("unexpected receipt %q", a)
	}
}
