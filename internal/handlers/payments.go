package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/services"
)

const maxPaymentBodySize = 4 * 1024

// PaymentHandlers opens gateway intents and verifies checkout signatures for authenticated users.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments}
}

// Routes registers /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/create-order", h.createOrder)
	r.Post("/verify", h.verify)
}

type createPaymentRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	OrderID string          `json:"orderId"`
}

type paymentIntentPayload struct {
	ID       string `json:"id"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Receipt  string `json:"receipt,omitempty"`
}

func (h *PaymentHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}

	intent, err := h.payments.CreateIntent(ctx, services.CreatePaymentIntentCommand{
		UserID:  identity.UID,
		Amount:  req.Amount,
		OrderID: req.OrderID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := paymentIntentPayload{
		ID:       intent.ID,
		Currency: intent.Currency,
		Amount:   intent.Amount,
		Receipt:  intent.Receipt,
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   payload,
	})
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
	OrderID          string `json:"orderId"`
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}

	result, err := h.payments.Verify(ctx, services.VerifyPaymentCommand{
		UserID:         identity.UID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.GatewayPaymentID,
		Signature:      req.Signature,
		OrderID:        req.OrderID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !result.Verified {
		writeJSONResponse(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid signature",
		})
		return
	}

	resp := map[string]any{
		"success": true,
		"message": "Payment verified",
	}
	if result.OrderID != "" {
		resp["orderId"] = result.OrderID
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
