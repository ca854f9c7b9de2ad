package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/goldenzaika/api/internal/domain"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/repositories"
)

const userCollection = "users"

// UserRepository reads user profiles and manages their role field.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{base: pfirestore.NewBaseRepository[userDocument](provider, userCollection)}, nil
}

// Get loads the profile by UID. A missing role reads as the default user role.
func (r *UserRepository) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile := domain.UserProfile{
		ID:          doc.ID,
		Email:       strings.TrimSpace(doc.Data.Email),
		DisplayName: strings.TrimSpace(doc.Data.DisplayName),
		Role:        normaliseRole(doc.Data.Role),
		CreatedAt:   timeOr(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt:   timeOr(doc.Data.UpdatedAt, doc.UpdateTime),
	}
	return profile, nil
}

// Role returns the user's role. Users without a profile document hold the default role.
func (r *UserRepository) Role(ctx context.Context, userID string) (string, error) {
	profile, err := r.Get(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.RoleUser, nil
		}
		return "", err
	}
	return profile.Role, nil
}

// SetRole updates the role of an existing user.
func (r *UserRepository) SetRole(ctx context.Context, userID, role string, at time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	return r.base.Update(ctx, strings.TrimSpace(userID), []firestore.Update{
		{Path: "role", Value: normaliseRole(role)},
		{Path: "updatedAt", Value: at.UTC()},
	})
}

type userDocument struct {
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	Role        string    `firestore:"role"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func normaliseRole(role string) string {
	trimmed := strings.ToLower(strings.TrimSpace(role))
	if trimmed == "" {
		return domain.RoleUser
	}
	return trimmed
}

var _ repositories.UserRepository = (*UserRepository)(nil)
