package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/goldenzaika/api/internal/platform/httpx"
	"github.com/goldenzaika/api/internal/platform/requestctx"
)

// MaintenanceMode short-circuits every request with 503 while enabled reports true. The flag is
// read per request so it can be flipped at runtime.
func MaintenanceMode(enabled func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if enabled == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled() {
				w.Header().Set("Retry-After", "300")
				httpx.WriteError(r.Context(), w, httpx.NewError("maintenance_mode", "Service is under maintenance. Please try again shortly.", http.StatusServiceUnavailable).AsRetryable())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdempotencyCleaner purges expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serves scheduler-triggered maintenance jobs. The routes are expected to sit
// behind OIDC verification.
type InternalHandlers struct {
	cleaner   IdempotencyCleaner
	batchSize int
	now       func() time.Time
}

// NewInternalHandlers constructs internal maintenance handlers.
func NewInternalHandlers(cleaner IdempotencyCleaner, batchSize int, clock func() time.Time) *InternalHandlers {
	if batchSize <= 0 {
		batchSize = 500
	}
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{cleaner: cleaner, batchSize: batchSize, now: clock}
}

// Routes registers /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/idempotency-cleanup", h.cleanupIdempotency)
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cleaner == nil {
		writeUnavailable(ctx, w, "idempotency")
		return
	}

	removed, err := h.cleaner.CleanupExpired(ctx, h.now(), h.batchSize)
	if err != nil {
		requestctx.Logger(ctx).Error("idempotency cleanup failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}
