package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/platform/pagination"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	defaultAuditActor   = "system"
	auditDetailMaxDepth = 3
)

type auditLogService struct {
	repo      repositories.AuditLogRepository
	clock     func() time.Time
	newID     func() string
	requestID func(context.Context) string
	logger    ServiceLogger
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	// RequestID extracts the inbound request id from ctx when a record does not carry one.
	RequestID func(context.Context) string
	Logger    ServiceLogger
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}
	requestID := deps.RequestID
	if requestID == nil {
		requestID = func(context.Context) string { return "" }
	}
	return &auditLogService{
		repo:      deps.Repository,
		clock:     utcClock(deps.Clock),
		newID:     idGenerator(deps.IDGenerator),
		requestID: requestID,
		logger:    serviceLogger(deps.Logger),
	}, nil
}

// Record persists an audit log entry after sanitising its fields. Repository failures are logged but
// do not bubble up, so an audit outage never fails the mutation it describes.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(ctx, record)
	if entry.Action == "" {
		s.logger(ctx, "audit.record_skipped", map[string]any{"reason": "missing action"})
		return
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit.append_failed", map[string]any{
			"action":    entry.Action,
			"targetRef": entry.TargetRef,
			"error":     err.Error(),
		})
	}
}

// List delegates to the repository to retrieve paginated audit logs, newest first.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		if _, err := pagination.DecodeToken(token); err != nil {
			return domain.CursorPage[AuditLogEntry]{}, wrapServiceError(ErrAuditInvalidInput, "invalid_page_token", "Invalid page token", err)
		}
	}
	page, err := s.repo.List(ctx, repositories.AuditLogFilter{
		Action:     strings.ToUpper(strings.TrimSpace(filter.Action)),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[AuditLogEntry]{}, translateRepoError(err, nil)
	}
	return page, nil
}

func (s *auditLogService) buildEntry(ctx context.Context, record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}
	actor := sanitizeText(record.Actor, 160)
	if actor == "" {
		actor = defaultAuditActor
	}
	requestID := sanitizeText(record.RequestID, 128)
	if requestID == "" {
		requestID = sanitizeText(s.requestID(ctx), 128)
	}
	return domain.AuditLogEntry{
		ID:        s.newID(),
		Actor:     actor,
		Action:    strings.ToUpper(sanitizeText(record.Action, 120)),
		TargetRef: sanitizeText(record.TargetRef, 200),
		Details:   sanitizeDetails(record.Details, 0),
		RequestID: requestID,
		CreatedAt: occurred.UTC(),
	}
}

func sanitizeDetails(details map[string]any, depth int) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		key = sanitizeText(key, 80)
		if key == "" {
			continue
		}
		out[key] = sanitizeDetailValue(value, depth)
	}
	return out
}

func sanitizeDetailValue(value any, depth int) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return sanitizeText(v, 512)
	case bool, int, int64, float64:
		return v
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, sanitizeText(item, 128))
		}
		return out
	case map[string]any:
		if depth >= auditDetailMaxDepth {
			return "[truncated]"
		}
		return sanitizeDetails(v, depth+1)
	case fmt.Stringer:
		return sanitizeText(v.String(), 512)
	default:
		return sanitizeText(fmt.Sprint(v), 512)
	}
}

// sanitizeText trims input, drops control characters other than whitespace, and caps the byte length.
func sanitizeText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
