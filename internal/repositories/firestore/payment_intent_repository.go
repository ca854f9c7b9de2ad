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
	"github.com/goldenzaika/api/internal/repositories"
)

const paymentIntentCollection = "payment_intents"

// PaymentIntentRepository stores gateway intents keyed by the gateway's intent id.
type PaymentIntentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentIntentDocument]
}

// NewPaymentIntentRepository constructs a Firestore-backed payment intent repository.
func NewPaymentIntentRepository(provider *pfirestore.Provider) (*PaymentIntentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment intent repository requires firestore provider")
	}
	return &PaymentIntentRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[paymentIntentDocument](provider, paymentIntentCollection),
	}, nil
}

// Insert records a freshly opened intent. Gateway ids are unique so an existing record conflicts.
func (r *PaymentIntentRepository) Insert(ctx context.Context, intent domain.PaymentIntent) error {
	return r.base.Create(ctx, strings.TrimSpace(intent.ID), paymentIntentFromDomain(intent))
}

// Get loads the intent by gateway id.
func (r *PaymentIntentRepository) Get(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(intentID))
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Mutate applies fn to the intent inside a transaction.
func (r *PaymentIntentRepository) Mutate(ctx context.Context, intentID string, fn func(*domain.PaymentIntent) error) (domain.PaymentIntent, error) {
	if fn == nil {
		return domain.PaymentIntent{}, errors.New("payment intent repository: mutate function is required")
	}
	docRef, err := r.base.DocumentRef(ctx, strings.TrimSpace(intentID))
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	var saved domain.PaymentIntent
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc paymentIntentDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode payment intent %s: %w", snap.Ref.ID, err)
		}
		intent := doc.toDomain(snap.Ref.ID)
		if err := fn(&intent); err != nil {
			return err
		}
		saved = intent
		return tx.Set(docRef, paymentIntentFromDomain(intent))
	})
	if err != nil {
		return domain.PaymentIntent{}, pfirestore.WrapError("payment_intents.mutate", err)
	}
	return saved, nil
}

type paymentIntentDocument struct {
	UserID     string     `firestore:"userId"`
	OrderID    string     `firestore:"orderId,omitempty"`
	Amount     int64      `firestore:"amount"`
	Currency   string     `firestore:"currency"`
	Receipt    string     `firestore:"receipt"`
	Status     string     `firestore:"status"`
	PaymentID  string     `firestore:"paymentId,omitempty"`
	Signature  string     `firestore:"signature,omitempty"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	VerifiedAt *time.Time `firestore:"verifiedAt,omitempty"`
}

func paymentIntentFromDomain(intent domain.PaymentIntent) paymentIntentDocument {
	return paymentIntentDocument{
		UserID:     intent.UserID,
		OrderID:    strings.TrimSpace(intent.OrderID),
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(intent.Currency)),
		Receipt:    intent.Receipt,
		Status:     string(intent.Status),
		PaymentID:  intent.PaymentID,
		Signature:  intent.Signature,
		CreatedAt:  intent.CreatedAt.UTC(),
		VerifiedAt: cloneTime(intent.VerifiedAt),
	}
}

func (d paymentIntentDocument) toDomain(id string) domain.PaymentIntent {
	return domain.PaymentIntent{
		ID:         id,
		UserID:     d.UserID,
		OrderID:    d.OrderID,
		Amount:     d.Amount,
		Currency:   d.Currency,
		Receipt:    d.Receipt,
		Status:     domain.PaymentIntentStatus(d.Status),
		PaymentID:  d.PaymentID,
		Signature:  d.Signature,
		CreatedAt:  d.CreatedAt,
		VerifiedAt: cloneTime(d.VerifiedAt),
	}
}

var _ repositories.PaymentIntentRepository = (*PaymentIntentRepository)(nil)
