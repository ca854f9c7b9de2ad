package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/goldenzaika/api/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers serves the storefront's pre-order helpers: zone validation, coupon redemption
// and the public zone listing. None of them require authentication.
type CheckoutHandlers struct {
	zones   services.ZoneService
	coupons services.CouponService
}

// NewCheckoutHandlers constructs checkout helpers.
func NewCheckoutHandlers(zones services.ZoneService, coupons services.CouponService) *CheckoutHandlers {
	return &CheckoutHandlers{zones: zones, coupons: coupons}
}

// Routes registers /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/validate-zone", h.validateZone)
}

// CouponRoutes registers /coupons endpoints.
func (h *CheckoutHandlers) CouponRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/apply", h.applyCoupon)
}

// ZoneRoutes registers the public /zones listing.
func (h *CheckoutHandlers) ZoneRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listZones)
}

type validateZoneRequest struct {
	PostalCode string          `json:"postalCode"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type validateZoneResponse struct {
	Success        bool         `json:"success"`
	Available      bool         `json:"available"`
	Zone           string       `json:"zone,omitempty"`
	Fee            *json.Number `json:"fee,omitempty"`
	MinOrderAmount *json.Number `json:"minOrderAmount,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Error          string       `json:"error,omitempty"`
}

func (h *CheckoutHandlers) validateZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		writeUnavailable(ctx, w, "zone")
		return
	}

	var req validateZoneRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}

	resolution, err := h.zones.Resolve(ctx, req.PostalCode, req.Subtotal)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := validateZoneResponse{
		Success:        true,
		Available:      resolution.Available,
		MinOrderAmount: moneyPtr(resolution.MinOrderAmount),
	}
	if resolution.Zone != nil {
		resp.Zone = resolution.Zone.Name
	}
	if resolution.Available {
		fee := money(resolution.DeliveryFee)
		resp.Fee = &fee
	} else {
		resp.Reason = string(resolution.Reason)
		resp.Error = resolution.Message
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type applyCouponRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cartTotal"`
}

type applyCouponResponse struct {
	Success    bool        `json:"success"`
	Discount   json.Number `json:"discount"`
	Code       string      `json:"code"`
	CouponCode string      `json:"couponCode"`
	Message    string      `json:"message"`
}

func (h *CheckoutHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}

	var req applyCouponRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}

	evaluation, err := h.coupons.Evaluate(ctx, req.Code, req.CartTotal)
	if err != nil {
		// Rejections use the storefront's {success:false, error} contract with the readable reason.
		if errors.Is(err, services.ErrCouponInvalid) || errors.Is(err, services.ErrCouponsDisabled) {
			httpErr := serviceHTTPError(err)
			writeJSONResponse(w, httpErr.Status, map[string]any{
				"success": false,
				"error":   httpErr.Message,
				"code":    httpErr.Code,
			})
			return
		}
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, applyCouponResponse{
		Success:    true,
		Discount:   money(evaluation.Discount),
		Code:       evaluation.Code,
		CouponCode: evaluation.Code,
		Message:    "Coupon applied successfully",
	})
}

type zonePayload struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Pincodes       []string    `json:"pincodes"`
	DeliveryFee    json.Number `json:"deliveryFee"`
	MinOrderAmount json.Number `json:"minOrderAmount"`
	IsActive       bool        `json:"isActive"`
	CreatedAt      string      `json:"createdAt,omitempty"`
	UpdatedAt      string      `json:"updatedAt,omitempty"`
}

func (h *CheckoutHandlers) listZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		writeUnavailable(ctx, w, "zone")
		return
	}

	zones, err := h.zones.ListActive(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"zones":   buildZonePayloads(zones),
	})
}

func buildZonePayloads(zones []services.Zone) []zonePayload {
	out := make([]zonePayload, 0, len(zones))
	for _, zone := range zones {
		out = append(out, buildZonePayload(zone))
	}
	return out
}

func buildZonePayload(zone services.Zone) zonePayload {
	codes := zone.PostalCodes
	if codes == nil {
		codes = []string{}
	}
	return zonePayload{
		ID:             zone.ID,
		Name:           zone.Name,
		Pincodes:       codes,
		DeliveryFee:    money(zone.DeliveryFee),
		MinOrderAmount: money(zone.MinOrderAmount),
		IsActive:       zone.Active,
		CreatedAt:      formatTime(zone.CreatedAt),
		UpdatedAt:      formatTime(zone.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
