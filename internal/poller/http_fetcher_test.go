package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
)

func TestHTTPFetcherFetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/orders/order-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer id-token" {
			t.Errorf("unexpected authorization %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Errorf("expected request id header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"order":{"id":"order-1","status":"Out for delivery","paymentStatus":"paid","updatedAt":"2025-03-01T12:30:00Z"}}`))
	}))
	defer srv.Close()

	fetcher, err := NewHTTPFetcher(srv.URL+"/", StaticToken("id-token"))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	snapshot, err := fetcher.FetchOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snapshot.Status != domain.OrderStatusOutForDelivery || snapshot.PaymentStatus != "paid" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if !snapshot.UpdatedAt.Equal(time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected updatedAt %v", snapshot.UpdatedAt)
	}
}

func TestHTTPFetcherErrorClassification(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		body          string
		wantPermanent bool
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"success":false,"error":"order_not_found","message":"Order not found"}`, wantPermanent: true},
		{name: "forbidden", status: http.StatusForbidden, body: `{"success":false,"error":"forbidden"}`, wantPermanent: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"success":false,"error":"invalid_token"}`, wantPermanent: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: `{"success":false,"error":"maintenance_mode","retryable":true}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`},
		{name: "garbage", status: http.StatusOK, body: `<html>`},
		{name: "no status", status: http.StatusOK, body: `{"success":true,"order":{"id":"order-1"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			fetcher, err := NewHTTPFetcher(srv.URL, StaticToken("t"))
			if err != nil {
				t.Fatalf("new fetcher: %v", err)
			}
			_, err = fetcher.FetchOrder(context.Background(), "order-1")
			if err == nil {
				t.Fatalf("expected error")
			}
			if errors.Is(err, ErrPermanent) != tc.wantPermanent {
				t.Fatalf("expected permanent=%v, got %v", tc.wantPermanent, err)
			}
		})
	}
}

func TestHTTPFetcherTokenFailure(t *testing.T) {
	fetcher, err := NewHTTPFetcher("https://api.example.com", func(context.Context) (string, error) {
		return "", errors.New("refresh token revoked")
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	if _, err := fetcher.FetchOrder(context.Background(), "order-1"); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestNewHTTPFetcherValidation(t *testing.T) {
	if _, err := NewHTTPFetcher("not a url", StaticToken("t")); err == nil {
		t.Fatalf("expected invalid url error")
	}
	if _, err := NewHTTPFetcher("https://api.example.com", nil); err == nil {
		t.Fatalf("expected missing token source error")
	}
}

func TestPollerWithHTTPFetcher(t *testing.T) {
	statuses := []string{"Placed", "Food Processing", "Delivered"}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := statuses[min(calls, len(statuses)-1)]
		calls++
		_, _ = w.Write([]byte(`{"success":true,"order":{"id":"order-1","status":"` + status + `"}}`))
	}))
	defer srv.Close()

	fetcher, err := NewHTTPFetcher(srv.URL, StaticToken("t"))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	var seen []domain.OrderStatus
	p, _ := New(fetcher, WithInterval(time.Millisecond), WithOnChange(func(_ context.Context, _, current Snapshot) {
		seen = append(seen, current.Status)
	}))

	final, err := p.Run(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != domain.OrderStatusDelivered || len(seen) != 3 {
		t.Fatalf("unexpected run result %+v seen=%v", final, seen)
	}
}
