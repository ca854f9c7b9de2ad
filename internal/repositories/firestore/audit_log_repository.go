package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/platform/pagination"
	"github.com/goldenzaika/api/internal/repositories"
)

const (
	auditLogCollection   = "admin_logs"
	defaultAuditPageSize = 50
)

// AuditLogRepository appends to and pages through the admin audit trail.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{base: pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogCollection)}, nil
}

// Append writes the entry under its id. Entries are never updated.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	doc := auditLogDocument{
		AdminID:   strings.TrimSpace(entry.Actor),
		Action:    strings.TrimSpace(entry.Action),
		TargetRef: strings.TrimSpace(entry.TargetRef),
		Details:   entry.Details,
		RequestID: strings.TrimSpace(entry.RequestID),
		Timestamp: entry.CreatedAt.UTC(),
	}
	return r.base.Create(ctx, entry.ID, doc)
}

// List returns entries newest first, optionally narrowed to one action.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = defaultAuditPageSize
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, err
		}
		startAfter, err = auditCursorValues(cursor)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, err
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if action := strings.TrimSpace(filter.Action); action != "" {
			q = q.Where("action", "==", action)
		}
		q = q.OrderBy("timestamp", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	page := domain.CursorPage[domain.AuditLogEntry]{Items: make([]domain.AuditLogEntry, 0, size)}
	for i, doc := range docs {
		if i == size {
			last := docs[size-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.Timestamp.UTC().Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.AuditLogEntry]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func auditCursorValues(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor timestamp", pagination.ErrInvalidPageToken)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: cursor id", pagination.ErrInvalidPageToken)
	}
	return []any{ts, id}, nil
}

type auditLogDocument struct {
	AdminID   string         `firestore:"adminId"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef,omitempty"`
	Details   map[string]any `firestore:"details"`
	RequestID string         `firestore:"requestId,omitempty"`
	Timestamp time.Time      `firestore:"timestamp"`
}

func (d auditLogDocument) toDomain(id string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        id,
		Actor:     d.AdminID,
		Action:    d.Action,
		TargetRef: d.TargetRef,
		Details:   d.Details,
		RequestID: d.RequestID,
		CreatedAt: d.Timestamp,
	}
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
