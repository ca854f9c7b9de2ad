package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/pagination"
)

func TestOrderDocumentRoundTripKeepsMoneyExact(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	code := "SAVE10"
	order := domain.Order{
		ID:     "ord_1",
		UserID: "user-1",
		Items: []domain.LineItem{
			{ProductID: "p1", Name: "Thali", UnitPrice: decimal.RequireFromString("199.99"), Quantity: 3},
		},
		Totals: domain.ComputeTotals(
			decimal.RequireFromString("599.97"),
			domain.DefaultTaxRate,
			decimal.RequireFromString("40"),
			decimal.RequireFromString("59.99"),
		),
		CouponCode:      &code,
		ShippingAddress: domain.ShippingAddress{Text: "12 MG Road, Pune 411001", Details: &domain.Address{Street: "12 MG Road", City: "Pune", Zip: "411001"}},
		Status:          domain.OrderStatusPlaced,
		Payment:         &domain.OrderPayment{IntentID: "pi_1", Amount: 60998, Currency: "INR", Status: domain.PaymentStatusPaid, VerifiedAt: &now},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	doc := orderFromDomain(order)
	if doc.PaymentStatus != "paid" {
		t.Fatalf("expected top-level payment status mirrored, got %q", doc.PaymentStatus)
	}
	got := doc.toDomain(order.ID)

	if !got.Totals.Total.Equal(order.Totals.Total) {
		t.Fatalf("total drifted: want %s got %s", order.Totals.Total, got.Totals.Total)
	}
	if !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("199.99")) {
		t.Fatalf("unit price drifted: %s", got.Items[0].UnitPrice)
	}
	if got.CouponCode == nil || *got.CouponCode != code {
		t.Fatalf("expected coupon code, got %v", got.CouponCode)
	}
	if got.ShippingAddress.Details == nil || got.ShippingAddress.Details.Zip != "411001" {
		t.Fatalf("expected shipping details snapshot, got %#v", got.ShippingAddress)
	}
	if !got.Paid() || got.Payment.Amount != 60998 {
		t.Fatalf("expected paid payment, got %#v", got.Payment)
	}
}

func TestCouponDocumentNormalisesCodeAndOptionalBounds(t *testing.T) {
	capAmount := decimal.RequireFromString("100")
	doc := couponFromDomain(domain.Coupon{
		Code:        " save20 ",
		Type:        domain.CouponTypePercentage,
		Value:       decimal.RequireFromString("20"),
		MaxDiscount: &capAmount,
		Active:      true,
	})
	if doc.Code != "SAVE20" {
		t.Fatalf("expected upper-cased code, got %q", doc.Code)
	}
	if doc.MinAmount != 0 || doc.Expiry != nil {
		t.Fatalf("expected zero min amount and nil expiry, got %v %v", doc.MinAmount, doc.Expiry)
	}

	got := doc.toDomain("c1")
	if got.MinAmount != nil {
		t.Fatalf("expected nil min amount, got %s", got.MinAmount)
	}
	if got.MaxDiscount == nil || !got.MaxDiscount.Equal(capAmount) {
		t.Fatalf("expected max discount 100, got %v", got.MaxDiscount)
	}
}

func TestProductAvailabilityDefaultsToTrue(t *testing.T) {
	off := false
	cases := []struct {
		name string
		doc  productDocument
		want bool
	}{
		{name: "unset flags", doc: productDocument{}, want: true},
		{name: "out of stock", doc: productDocument{IsAvailable: &off}, want: false},
		{name: "soft deleted", doc: productDocument{IsActive: &off}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.doc.toDomain("p").Available; got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAuditCursorValues(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{ts.Format(time.RFC3339Nano), "log-9"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	values, err := auditCursorValues(cursor)
	if err != nil {
		t.Fatalf("auditCursorValues: %v", err)
	}
	if got := values[0].(time.Time); !got.Equal(ts) {
		t.Fatalf("unexpected timestamp %v", got)
	}
	if values[1] != "log-9" {
		t.Fatalf("unexpected id %v", values[1])
	}

	if _, err := auditCursorValues(pagination.Cursor{StartAfter: []any{float64(1)}}); err == nil {
		t.Fatalf("expected malformed cursor to fail")
	}
}

func TestNormaliseRole(t *testing.T) {
	if got := normaliseRole(""); got != domain.RoleUser {
		t.Fatalf("expected default user role, got %q", got)
	}
	if got := normaliseRole(" Admin "); got != domain.RoleAdmin {
		t.Fatalf("expected admin, got %q", got)
	}
}
