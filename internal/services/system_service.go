package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/repositories"
)

// BuildInfo is the deployment metadata stamped onto readiness reports.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	Audit            AuditLogService
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
	audit  AuditLogService
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the operator-facing service behind /readyz and the audit trail.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	now := utcClock(deps.Clock)
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = now()
	}
	return &systemService{
		health: deps.HealthRepository,
		now:    now,
		build:  build,
		audit:  deps.Audit,
	}, nil
}

// HealthReport collects dependency checks and fills in whatever the repository left blank:
// build metadata, uptime, generation time and, when absent, the overall status.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report, nil
}

// ListAuditLogs pages through admin actions. Action filters are matched against the stored
// constant form, so "update order status" finds UPDATE_ORDER_STATUS.
func (s *systemService) ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if s.audit == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("system service: audit service not configured")
	}
	filter.Action = auditActionKey(filter.Action)
	return s.audit.List(ctx, filter)
}

func auditActionKey(action string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(action), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	return strings.ToUpper(strings.Join(fields, "_"))
}

// worstStatus folds per-check statuses: any error fails the report, anything else that is not ok
// degrades it.
func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
