package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/goldenzaika/api/internal/platform/httpx"
	"github.com/goldenzaika/api/internal/platform/requestctx"
	"github.com/goldenzaika/api/internal/services"
)

type errorMapping struct {
	kind      error
	status    int
	code      string
	message   string
	retryable bool
}

// Order matters: the first sentinel the error matches decides the response.
var serviceErrorMappings = []errorMapping{
	{kind: services.ErrServiceUnavailable, status: http.StatusServiceUnavailable, code: "service_unavailable", message: "Service temporarily unavailable", retryable: true},
	{kind: services.ErrPaymentInitiationFailed, status: http.StatusBadGateway, code: "payment_initiation_failed", message: "payment initiation failed", retryable: true},

	{kind: services.ErrZoneInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid zone request"},
	{kind: services.ErrCouponInvalid, status: http.StatusBadRequest, code: "coupon_invalid", message: "Invalid or expired coupon code"},
	{kind: services.ErrCouponInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid coupon request"},
	{kind: services.ErrCouponsDisabled, status: http.StatusBadRequest, code: "coupons_disabled", message: "Coupons are currently disabled"},
	{kind: services.ErrOrderInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid order request"},
	{kind: services.ErrOrderInvalidState, status: http.StatusBadRequest, code: "invalid_transition", message: "Order cannot be changed in its current state"},
	{kind: services.ErrPaymentInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid payment request"},
	{kind: services.ErrPaymentMismatch, status: http.StatusBadRequest, code: "payment_mismatch", message: "Payment does not match the order"},
	{kind: services.ErrAddressInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid address"},
	{kind: services.ErrFavoriteInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid favorite"},
	{kind: services.ErrUserInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid user request"},
	{kind: services.ErrAuditInvalidInput, status: http.StatusBadRequest, code: "invalid_request", message: "Invalid audit log query"},

	{kind: services.ErrOrderForbidden, status: http.StatusForbidden, code: "forbidden", message: "Forbidden"},
	{kind: services.ErrPaymentForbidden, status: http.StatusForbidden, code: "forbidden", message: "Forbidden"},

	{kind: services.ErrZoneNotFound, status: http.StatusNotFound, code: "zone_not_found", message: "Zone not found"},
	{kind: services.ErrCouponNotFound, status: http.StatusNotFound, code: "coupon_not_found", message: "Coupon not found"},
	{kind: services.ErrOrderNotFound, status: http.StatusNotFound, code: "order_not_found", message: "Order not found"},
	{kind: services.ErrPaymentNotFound, status: http.StatusNotFound, code: "payment_not_found", message: "Payment not found"},
	{kind: services.ErrAddressNotFound, status: http.StatusNotFound, code: "address_not_found", message: "Address not found"},
	{kind: services.ErrUserNotFound, status: http.StatusNotFound, code: "user_not_found", message: "User not found"},

	{kind: services.ErrCouponConflict, status: http.StatusConflict, code: "coupon_exists", message: "Coupon code already exists"},
	{kind: services.ErrOrderConflict, status: http.StatusConflict, code: "order_conflict", message: "Order was modified concurrently"},
}

// serviceHTTPError translates a service error into the API envelope. Domain errors contribute
// their code and caller-safe message; anything unclassified becomes an opaque 500.
func serviceHTTPError(err error) httpx.Error {
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		code, message := m.code, m.message
		var domainErr services.DomainError
		if errors.As(err, &domainErr) {
			if c := strings.TrimSpace(domainErr.Code()); c != "" {
				code = c
			}
			if msg := strings.TrimSpace(domainErr.SafeMessage()); msg != "" {
				message = msg
			}
		}
		out := httpx.NewError(code, message, m.status)
		if m.retryable {
			out = out.AsRetryable()
		}
		return out
	}
	return httpx.NewError("internal_error", "Internal server error", http.StatusInternalServerError)
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	httpErr := serviceHTTPError(err)
	logger := requestctx.Logger(ctx)
	switch {
	case httpErr.Status >= http.StatusInternalServerError:
		logger.Error("request failed", zap.String("code", httpErr.Code), zap.Error(err))
	case httpErr.Status == http.StatusForbidden:
		logger.Warn("request forbidden", zap.String("code", httpErr.Code), zap.Error(err))
	}
	httpx.WriteError(ctx, w, httpErr)
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}
