package services

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/goldenzaika/api/internal/domain"
)

// ServiceLogger is the structured event hook every service accepts.
type ServiceLogger func(ctx context.Context, event string, fields map[string]any)

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

func idGenerator(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	return func() string { return ulid.Make().String() }
}

func serviceLogger(logger ServiceLogger) ServiceLogger {
	if logger != nil {
		return logger
	}
	return func(context.Context, string, map[string]any) {}
}

type noopAuditLogService struct{}

func (noopAuditLogService) Record(context.Context, AuditLogRecord) {}

func (noopAuditLogService) List(context.Context, AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	return domain.CursorPage[AuditLogEntry]{}, nil
}

func auditOrNoop(audit AuditLogService) AuditLogService {
	if audit == nil {
		return noopAuditLogService{}
	}
	return audit
}

func dedupeTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
