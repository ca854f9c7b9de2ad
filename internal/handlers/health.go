package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/requestctx"
	"github.com/goldenzaika/api/internal/services"
	"go.uber.org/zap"
)

// HealthHandlers serves liveness, readiness and the storefront dependency probe.
type HealthHandlers struct {
	build  services.BuildInfo
	system services.SystemService
	now    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithHealthSystemService wires the dependency report used by /readyz and /api/v1/health.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// NewHealthHandlers constructs health handlers. Without a system service readiness reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

type readyzCheck struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type readyzResponse struct {
	Status    string                 `json:"status"`
	Checks    map[string]readyzCheck `json:"checks"`
	Details   []string               `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// Readyz runs the dependency checks and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{
			Status:    domain.HealthStatusOK,
			Checks:    map[string]readyzCheck{},
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("readiness report failed", zap.Error(err))
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:    domain.HealthStatusError,
			Checks:    map[string]readyzCheck{},
			Details:   []string{"health report unavailable"},
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
		return
	}

	resp := readyzResponse{
		Status:    report.Status,
		Checks:    make(map[string]readyzCheck, len(report.Checks)),
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		resp.Checks[name] = readyzCheck{
			Status:    check.Status,
			LatencyMS: check.Latency.Milliseconds(),
			Error:     check.Error,
		}
		if check.Status != domain.HealthStatusOK {
			reason := strings.TrimSpace(check.Error)
			if reason == "" {
				reason = check.Status
			}
			resp.Details = append(resp.Details, name+": "+reason)
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

// Dependencies answers the storefront's health probe with a healthy/unhealthy flag per backing
// service. It always returns 200 so monitors read the body.
func (h *HealthHandlers) Dependencies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload := map[string]string{
		"firebase":  "unknown",
		"redis":     "unknown",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.system != nil {
		report, err := h.system.HealthReport(ctx)
		if err != nil {
			requestctx.Logger(ctx).Warn("dependency report failed", zap.Error(err))
		} else {
			payload["firebase"] = healthyLabel(report.Checks, "firestore")
			payload["redis"] = healthyLabel(report.Checks, "redis")
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func healthyLabel(checks map[string]domain.SystemHealthCheck, name string) string {
	check, ok := checks[name]
	if !ok {
		return "unknown"
	}
	if check.Status == domain.HealthStatusOK {
		return "healthy"
	}
	return "unhealthy"
}
