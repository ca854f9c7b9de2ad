package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/goldenzaika/api/internal/services"
)

func TestServiceHTTPError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantMessage   string
		wantRetryable bool
	}{
		{
			name:        "wrapped sentinel uses table defaults",
			err:         fmt.Errorf("%w: order abc", services.ErrOrderNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    "order_not_found",
			wantMessage: "Order not found",
		},
		{
			name:        "domain error overrides code and message",
			err:         newDomainError(services.ErrOrderInvalidState, "order_delivered", "Delivered orders cannot be cancelled"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "order_delivered",
			wantMessage: "Delivered orders cannot be cancelled",
		},
		{
			name:          "unavailable is retryable",
			err:           fmt.Errorf("redis: %w", services.ErrServiceUnavailable),
			wantStatus:    http.StatusServiceUnavailable,
			wantCode:      "service_unavailable",
			wantMessage:   "Service temporarily unavailable",
			wantRetryable: true,
		},
		{
			name:        "conflict",
			err:         services.ErrCouponConflict,
			wantStatus:  http.StatusConflict,
			wantCode:    "coupon_exists",
			wantMessage: "Coupon code already exists",
		},
		{
			name:        "unclassified error stays opaque",
			err:         errors.New("rpc error: code = Internal desc = secret detail"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal_error",
			wantMessage: "Internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := serviceHTTPError(tc.err)
			if got.Status != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, got.Status)
			}
			if got.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, got.Code)
			}
			if got.Message != tc.wantMessage {
				t.Fatalf("expected message %q, got %q", tc.wantMessage, got.Message)
			}
			if got.Retryable != tc.wantRetryable {
				t.Fatalf("expected retryable=%v, got %v", tc.wantRetryable, got.Retryable)
			}
		})
	}
}
