package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/platform/httpx"
	"github.com/goldenzaika/api/internal/services"
)

const (
	maxOrderBodySize       = 64 * 1024
	maxOrderCancelBodySize = 4 * 1024
	idempotencyHeader      = "Idempotency-Key"
)

// OrderHandlers exposes checkout, order history and the order lifecycle to authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	now    func() time.Time
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderClock overrides the clock used for SLA views.
func WithOrderClock(clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/mine", h.listMine)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateStatus)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

type orderItemRequest struct {
	ProductID string          `json:"productId"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"imageUrl"`
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	TotalAmount     *decimal.Decimal   `json:"totalAmount"`
	Discount        *decimal.Decimal   `json:"discount"`
	CouponCode      string             `json:"couponCode"`
	PostalCode      string             `json:"postalCode"`
	ShippingAddress string             `json:"shippingAddress"`
	AddressID       string             `json:"addressId"`
	Instructions    string             `json:"instructions"`
	RequestToken    string             `json:"requestToken"`
	PaymentIntentID string             `json:"paymentIntentId"`
}

func (req createOrderRequest) toCommand(userID, headerToken string) services.CreateOrderCommand {
	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			productID = strings.TrimSpace(item.ID)
		}
		items = append(items, services.OrderItemInput{
			ProductID: productID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	token := strings.TrimSpace(req.RequestToken)
	if token == "" {
		token = strings.TrimSpace(headerToken)
	}
	return services.CreateOrderCommand{
		UserID:          userID,
		Items:           items,
		ClientTotal:     req.TotalAmount,
		ClientDiscount:  req.Discount,
		CouponCode:      req.CouponCode,
		PostalCode:      req.PostalCode,
		ShippingAddress: req.ShippingAddress,
		AddressID:       req.AddressID,
		Instructions:    req.Instructions,
		RequestToken:    token,
		PaymentIntentID: req.PaymentIntentID,
	}
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}

	created, err := h.orders.Create(ctx, req.toCommand(identity.UID, r.Header.Get(idempotencyHeader)))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if created.Replayed {
		status = http.StatusOK
	} else {
		w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+created.Order.ID)
	}
	writeJSONResponse(w, status, map[string]any{
		"success":  true,
		"id":       created.Order.ID,
		"replayed": created.Replayed,
		"order":    buildOrderPayload(created.Order, h.now()),
	})
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orders, err := h.orders.ListMine(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  buildOrderPayloads(orders, h.now()),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
		IsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   buildOrderPayload(order, h.now()),
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.IsAdmin() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "Forbidden: Insufficient permissions. Required: admin", http.StatusForbidden))
		return
	}

	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
		Status:  req.Status,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order status updated",
		"order":   buildOrderPayload(order, h.now()),
	})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !optionalJSONBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order cancelled successfully",
		"order":   buildOrderPayload(order, h.now()),
	})
}

type orderItemPayload struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
	ImageURL  string      `json:"imageUrl,omitempty"`
}

type orderPaymentPayload struct {
	IntentID   string `json:"intentId"`
	PaymentID  string `json:"paymentId,omitempty"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	VerifiedAt string `json:"verifiedAt,omitempty"`
	RefundID   string `json:"refundId,omitempty"`
}

type orderSLAPayload struct {
	ElapsedMinutes int    `json:"elapsedMinutes"`
	Level          string `json:"level"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	Items           []orderItemPayload   `json:"items"`
	Subtotal        json.Number          `json:"subtotal"`
	Tax             json.Number          `json:"tax"`
	DeliveryFee     json.Number          `json:"deliveryFee"`
	Discount        json.Number          `json:"discount"`
	TotalAmount     json.Number          `json:"totalAmount"`
	CouponCode      string               `json:"couponCode,omitempty"`
	ShippingAddress string               `json:"shippingAddress"`
	Address         *addressPayload      `json:"address,omitempty"`
	Instructions    string               `json:"instructions,omitempty"`
	Status          string               `json:"status"`
	PaymentStatus   string               `json:"paymentStatus"`
	Payment         *orderPaymentPayload `json:"payment,omitempty"`
	CancelReason    string               `json:"cancelReason,omitempty"`
	SLA             *orderSLAPayload     `json:"sla,omitempty"`
	CreatedAt       string               `json:"createdAt,omitempty"`
	UpdatedAt       string               `json:"updatedAt,omitempty"`
	ProcessingAt    string               `json:"processingAt,omitempty"`
	DispatchedAt    string               `json:"dispatchedAt,omitempty"`
	DeliveredAt     string               `json:"deliveredAt,omitempty"`
	CancelledAt     string               `json:"cancelledAt,omitempty"`
}

func buildOrderPayloads(orders []services.Order, now time.Time) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order, now))
	}
	return out
}

func buildOrderPayload(order services.Order, now time.Time) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     money(item.UnitPrice),
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}

	payload := orderPayload{
		ID:              order.ID,
		UserID:          order.UserID,
		Items:           items,
		Subtotal:        money(order.Totals.Subtotal),
		Tax:             money(order.Totals.Tax),
		DeliveryFee:     money(order.Totals.DeliveryFee),
		Discount:        money(order.Totals.Discount),
		TotalAmount:     money(order.Totals.Total),
		ShippingAddress: order.ShippingAddress.Text,
		Instructions:    order.Instructions,
		Status:          string(order.Status),
		PaymentStatus:   string(domain.PaymentStatusPending),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		ProcessingAt:    formatTimePtr(order.ProcessingAt),
		DispatchedAt:    formatTimePtr(order.DispatchedAt),
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
	}
	if order.CouponCode != nil {
		payload.CouponCode = *order.CouponCode
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	if order.ShippingAddress.Details != nil {
		addr := buildAddressPayload(*order.ShippingAddress.Details)
		payload.Address = &addr
	}
	if p := order.Payment; p != nil {
		payload.PaymentStatus = string(p.Status)
		payload.Payment = &orderPaymentPayload{
			IntentID:   p.IntentID,
			PaymentID:  p.PaymentID,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Status:     string(p.Status),
			VerifiedAt: formatTimePtr(p.VerifiedAt),
			RefundID:   p.RefundID,
		}
	}
	if sla, ok := domain.SLAFor(order, now); ok {
		payload.SLA = &orderSLAPayload{ElapsedMinutes: sla.ElapsedMinutes, Level: string(sla.Level)}
	}
	return payload
}
