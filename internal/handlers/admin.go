package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/platform/httpx"
	"github.com/goldenzaika/api/internal/platform/pagination"
	"github.com/goldenzaika/api/internal/services"
)

const maxAdminBodySize = 32 * 1024

// AdminHandlers serves the operator console: zones, coupons, the order board, analytics, audit
// history and role management.
type AdminHandlers struct {
	authn   *auth.Authenticator
	zones   services.ZoneService
	coupons services.CouponService
	orders  services.OrderService
	users   services.UserService
	system  services.SystemService
	now     func() time.Time
}

// AdminDeps bundles the services behind /admin.
type AdminDeps struct {
	Zones   services.ZoneService
	Coupons services.CouponService
	Orders  services.OrderService
	Users   services.UserService
	System  services.SystemService
	Clock   func() time.Time
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, deps AdminDeps) *AdminHandlers {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AdminHandlers{
		authn:   authn,
		zones:   deps.Zones,
		coupons: deps.Coupons,
		orders:  deps.Orders,
		users:   deps.Users,
		system:  deps.System,
		now:     clock,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Route("/zones", func(r chi.Router) {
		r.Get("/", h.listZones)
		r.Post("/", h.createZone)
		r.Put("/{zoneID}", h.updateZone)
		r.Patch("/{zoneID}", h.updateZone)
		r.Delete("/{zoneID}", h.deleteZone)
	})
	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.listCoupons)
		r.Post("/", h.createCoupon)
		r.Put("/{couponID}", h.updateCoupon)
		r.Patch("/{couponID}", h.updateCoupon)
		r.Delete("/{couponID}", h.deleteCoupon)
	})
	r.Get("/orders", h.listOrders)
	r.Get("/analytics", h.stats)
	r.Get("/audit-logs", h.listAuditLogs)
	r.Put("/users/{uid}/role", h.setUserRole)
}

// requireAdmin re-checks the role so the handlers stay safe when mounted without the middleware.
func requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, false
	}
	if !identity.IsAdmin() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "Forbidden: Insufficient permissions. Required: admin", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

// Zones ----------------------------------------------------------------------

type zoneRequest struct {
	Name           *string          `json:"name"`
	Pincodes       []string         `json:"pincodes"`
	DeliveryFee    *decimal.Decimal `json:"deliveryFee"`
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount"`
	IsActive       *bool            `json:"isActive"`
}

func (h *AdminHandlers) listZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		writeUnavailable(ctx, w, "zone")
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	zones, err := h.zones.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true, "zones": buildZonePayloads(zones)})
}

func (h *AdminHandlers) createZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		writeUnavailable(ctx, w, "zone")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if !decodeStrictJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}

	cmd := services.CreateZoneCommand{
		ActorID:     identity.UID,
		Name:        deref(req.Name),
		PostalCodes: req.Pincodes,
	}
	if req.DeliveryFee != nil {
		cmd.DeliveryFee = *req.DeliveryFee
	}
	if req.MinOrderAmount != nil {
		cmd.MinOrderAmount = *req.MinOrderAmount
	}
	zone, err := h.zones.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      zone.ID,
		"message": "Zone created",
		"zone":    buildZonePayload(zone),
	})
}

func (h *AdminHandlers) updateZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		writeUnavailable(ctx, w, "zone")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if !decodeStrictJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}

	zone, err := h.zones.Update(ctx, services.UpdateZoneCommand{
		ActorID:        identity.UID,
		ZoneID:         chi.URLParam(r, "zoneID"),
		Name:           req.Name,
		PostalCodes:    req.Pincodes,
		DeliveryFee:    req.DeliveryFee,
		MinOrderAmount: req.MinOrderAmount,
		Active:         req.IsActive,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Zone updated",
		"zone":    buildZonePayload(zone),
	})
}

func (h *AdminHandlers) deleteZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		writeUnavailable(ctx, w, "zone")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	err := h.zones.Delete(ctx, services.DeleteZoneCommand{ActorID: identity.UID, ZoneID: chi.URLParam(r, "zoneID")})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true, "message": "Zone deleted"})
}

// Coupons --------------------------------------------------------------------

type couponRequest struct {
	Code        *string          `json:"code"`
	Type        *string          `json:"type"`
	Value       *decimal.Decimal `json:"value"`
	MinAmount   *decimal.Decimal `json:"minAmount"`
	MaxDiscount *decimal.Decimal `json:"maxDiscount"`
	Expiry      json.RawMessage  `json:"expiry"`
	IsActive    *bool            `json:"isActive"`
}

// expiry distinguishes an absent field from an explicit null, which clears the expiry.
func (req couponRequest) expiry() (at *time.Time, clear bool, err error) {
	raw := strings.TrimSpace(string(req.Expiry))
	if raw == "" {
		return nil, false, nil
	}
	if raw == "null" {
		return nil, true, nil
	}
	var value string
	if err := json.Unmarshal(req.Expiry, &value); err != nil {
		return nil, false, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, perr := time.Parse(layout, value); perr == nil {
			parsed = parsed.UTC()
			return &parsed, false, nil
		}
	}
	return nil, false, errInvalidExpiry
}

var errInvalidExpiry = errors.New("expiry must be an RFC3339 timestamp or YYYY-MM-DD date")

type couponPayload struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Type        string       `json:"type"`
	Value       json.Number  `json:"value"`
	MinAmount   *json.Number `json:"minAmount,omitempty"`
	MaxDiscount *json.Number `json:"maxDiscount,omitempty"`
	Expiry      string       `json:"expiry,omitempty"`
	IsActive    bool         `json:"isActive"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:          coupon.ID,
		Code:        coupon.Code,
		Type:        string(coupon.Type),
		Value:       money(coupon.Value),
		MinAmount:   moneyPtr(coupon.MinAmount),
		MaxDiscount: moneyPtr(coupon.MaxDiscount),
		Expiry:      formatTimePtr(coupon.ExpiresAt),
		IsActive:    coupon.Active,
		CreatedAt:   formatTime(coupon.CreatedAt),
		UpdatedAt:   formatTime(coupon.UpdatedAt),
	}
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	coupons, err := h.coupons.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := make([]couponPayload, 0, len(coupons))
	for _, coupon := range coupons {
		payload = append(payload, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true, "coupons": payload})
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if !decodeStrictJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	expiresAt, _, err := req.expiry()
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	coupon, err := h.coupons.Create(ctx, services.CreateCouponCommand{
		ActorID:     identity.UID,
		Code:        deref(req.Code),
		Type:        deref(req.Type),
		Value:       req.Value,
		MinAmount:   req.MinAmount,
		MaxDiscount: req.MaxDiscount,
		ExpiresAt:   expiresAt,
		Active:      req.IsActive,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      coupon.ID,
		"message": "Coupon created",
		"coupon":  buildCouponPayload(coupon),
	})
}

func (h *AdminHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if !decodeStrictJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	expiresAt, clearExpiry, err := req.expiry()
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	coupon, err := h.coupons.Update(ctx, services.UpdateCouponCommand{
		ActorID:     identity.UID,
		CouponID:    chi.URLParam(r, "couponID"),
		Code:        req.Code,
		Type:        req.Type,
		Value:       req.Value,
		MinAmount:   req.MinAmount,
		MaxDiscount: req.MaxDiscount,
		ExpiresAt:   expiresAt,
		ClearExpiry: clearExpiry,
		Active:      req.IsActive,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Coupon updated",
		"coupon":  buildCouponPayload(coupon),
	})
}

func (h *AdminHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	err := h.coupons.Delete(ctx, services.DeleteCouponCommand{ActorID: identity.UID, CouponID: chi.URLParam(r, "couponID")})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true, "message": "Coupon deleted"})
}

// Orders and analytics -------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	orders, err := h.orders.ListAll(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  buildOrderPayloads(orders, h.now()),
	})
}

type statsPayload struct {
	TotalOrders   int         `json:"totalOrders"`
	TotalRevenue  json.Number `json:"totalRevenue"`
	ActiveUsers   int         `json:"activeUsers"`
	PendingOrders int         `json:"pendingOrders"`
	GeneratedAt   string      `json:"generatedAt,omitempty"`
}

func (h *AdminHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	stats, err := h.orders.Stats(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"data": statsPayload{
			TotalOrders:   stats.TotalOrders,
			TotalRevenue:  money(stats.TotalRevenue),
			ActiveUsers:   stats.ActiveUsers,
			PendingOrders: stats.PendingOrders,
			GeneratedAt:   formatTime(stats.GeneratedAt),
		},
	})
}

// Audit logs and roles -------------------------------------------------------

type auditLogPayload struct {
	ID        string         `json:"id"`
	AdminID   string         `json:"adminId"`
	Action    string         `json:"action"`
	TargetRef string         `json:"targetRef,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeUnavailable(ctx, w, "system")
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{AllowedFilterFields: []string{"action"}})
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	action, _ := params.FilterValue("action")
	if action == "" {
		action = r.URL.Query().Get("action")
	}

	page, err := h.system.ListAuditLogs(ctx, services.AuditLogFilter{
		Action: action,
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditLogPayload{
			ID:        entry.ID,
			AdminID:   entry.Actor,
			Action:    entry.Action,
			TargetRef: entry.TargetRef,
			Details:   entry.Details,
			RequestID: entry.RequestID,
			Timestamp: formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":       true,
		"logs":          items,
		"nextPageToken": page.NextPageToken,
	})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminHandlers) setUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req setRoleRequest
	if !decodeStrictJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}

	profile, err := h.users.SetRole(ctx, services.SetUserRoleCommand{
		ActorID: identity.UID,
		UserID:  chi.URLParam(r, "uid"),
		Role:    req.Role,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Role updated",
		"user":    buildProfilePayload(profile),
	})
}
