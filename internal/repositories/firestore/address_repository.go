package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists user addresses in Firestore.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the user, newest first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs, err := pfirestore.Collect[addressDocument](ctx, coll.OrderBy("createdAt", firestore.Desc), "addresses.list")
	if err != nil {
		return nil, err
	}
	results := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		results = append(results, doc.Data.toDomain(doc.ID))
	}
	return results, nil
}

// Get loads one address.
func (r *AddressRepository) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	doc, err := pfirestore.Decode[addressDocument](snap)
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save creates or replaces the address. An empty ID allocates a new document. When the address is the
// default, every other default for the user is cleared in the same transaction.
func (r *AddressRepository) Save(ctx context.Context, userID string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	docRef := coll.NewDoc()
	if id := strings.TrimSpace(addr.ID); id != "" {
		docRef = coll.Doc(id)
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := addressFromDomain(addr)
		snap, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.OK:
			var existing addressDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
			}
			doc.CreatedAt = timeOr(existing.CreatedAt, doc.CreatedAt)
		case codes.NotFound:
		default:
			return err
		}

		var others []*firestore.DocumentSnapshot
		if doc.IsDefault {
			others, err = r.defaults(tx, coll)
			if err != nil {
				return err
			}
		}

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		if err := clearDefaults(tx, others, docRef.ID, doc.UpdatedAt); err != nil {
			return err
		}
		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.save", err)
	}
	return saved, nil
}

// Delete removes the address document.
func (r *AddressRepository) Delete(ctx context.Context, userID, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

// SetDefault marks one address as the default and clears the flag on the others.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, addressID string, at time.Time) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	docRef := coll.Doc(id)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(docRef); err != nil {
			return err
		}
		others, err := r.defaults(tx, coll)
		if err != nil {
			return err
		}
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "isDefault", Value: true},
			{Path: "updatedAt", Value: at.UTC()},
		}); err != nil {
			return err
		}
		return clearDefaults(tx, others, id, at.UTC())
	})
	return pfirestore.WrapError("addresses.setDefault", err)
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	return r.provider.Collection(ctx, fmt.Sprintf(addressCollectionPattern, uid))
}

func (r *AddressRepository) defaults(tx *firestore.Transaction, coll *firestore.CollectionRef) ([]*firestore.DocumentSnapshot, error) {
	snaps, err := tx.Documents(coll.Where("isDefault", "==", true)).GetAll()
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, err
	}
	return snaps, nil
}

func clearDefaults(tx *firestore.Transaction, snaps []*firestore.DocumentSnapshot, keepID string, at time.Time) error {
	for _, snap := range snaps {
		if snap.Ref.ID == keepID {
			continue
		}
		if err := tx.Update(snap.Ref, []firestore.Update{
			{Path: "isDefault", Value: false},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}
	}
	return nil
}

type addressDocument struct {
	Label     string    `firestore:"label"`
	Street    string    `firestore:"street"`
	City      string    `firestore:"city"`
	State     string    `firestore:"state"`
	Zip       string    `firestore:"zip"`
	Phone     string    `firestore:"phone"`
	IsDefault bool      `firestore:"isDefault"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func addressFromDomain(addr domain.Address) addressDocument {
	return addressDocument{
		Label:     strings.TrimSpace(addr.Label),
		Street:    strings.TrimSpace(addr.Street),
		City:      strings.TrimSpace(addr.City),
		State:     strings.TrimSpace(addr.State),
		Zip:       strings.TrimSpace(addr.Zip),
		Phone:     strings.TrimSpace(addr.Phone),
		IsDefault: addr.IsDefault,
		CreatedAt: addr.CreatedAt.UTC(),
		UpdatedAt: addr.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:        id,
		Label:     d.Label,
		Street:    d.Street,
		City:      d.City,
		State:     d.State,
		Zip:       d.Zip,
		Phone:     d.Phone,
		IsDefault: d.IsDefault,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
