package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/repositories"
)

type stubUserRepo struct {
	profiles   map[string]domain.UserProfile
	roleCalls  int
	setRoleErr error
}

func (s *stubUserRepo) Get(_ context.Context, userID string) (domain.UserProfile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.UserProfile{}, errStubNotFound
	}
	return profile, nil
}

func (s *stubUserRepo) Role(_ context.Context, userID string) (string, error) {
	s.roleCalls++
	profile, ok := s.profiles[userID]
	if !ok || profile.Role == "" {
		return domain.RoleUser, nil
	}
	return profile.Role, nil
}

func (s *stubUserRepo) SetRole(_ context.Context, userID, role string, at time.Time) error {
	if s.setRoleErr != nil {
		return s.setRoleErr
	}
	profile := s.profiles[userID]
	profile.Role = role
	profile.UpdatedAt = at
	s.profiles[userID] = profile
	return nil
}

type stubClaimSetter struct {
	claims map[string]string
	err    error
}

func (s *stubClaimSetter) SetRoleClaim(_ context.Context, uid, role string) error {
	if s.err != nil {
		return s.err
	}
	if s.claims == nil {
		s.claims = map[string]string{}
	}
	s.claims[uid] = role
	return nil
}

func newUserFixture() (*stubUserRepo, *stubClaimSetter, *recordingAudit) {
	repo := &stubUserRepo{profiles: map[string]domain.UserProfile{
		"admin-1": {ID: "admin-1", Role: domain.RoleAdmin},
		"user-1":  {ID: "user-1", Role: domain.RoleUser, Email: "u1@example.com"},
	}}
	return repo, &stubClaimSetter{}, &recordingAudit{}
}

func TestUserServiceResolveRole(t *testing.T) {
	repo, _, _ := newUserFixture()
	svc, err := NewUserService(UserServiceDeps{Users: repo})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}

	role, err := svc.ResolveRole(context.Background(), "admin-1")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("expected admin, got %q (%v)", role, err)
	}
	role, err = svc.ResolveRole(context.Background(), "stranger")
	if err != nil || role != domain.RoleUser {
		t.Fatalf("expected default user role, got %q (%v)", role, err)
	}
	if _, err := svc.ResolveRole(context.Background(), " "); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUserServiceSetRolePromotes(t *testing.T) {
	repo, claims, audit := newUserFixture()
	now := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	svc, _ := NewUserService(UserServiceDeps{Users: repo, Claims: claims, Audit: audit, Clock: fixedClock(now)})

	profile, err := svc.SetRole(context.Background(), SetUserRoleCommand{ActorID: "admin-1", UserID: "user-1", Role: " Admin "})
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if profile.Role != domain.RoleAdmin || !profile.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if claims.claims["user-1"] != domain.RoleAdmin {
		t.Fatalf("expected claim written, got %v", claims.claims)
	}
	if repo.profiles["user-1"].Role != domain.RoleAdmin {
		t.Fatalf("expected stored role admin")
	}
	if len(audit.records) != 1 || audit.records[0].Action != "UPDATE_USER_ROLE" || audit.records[0].Details["previousRole"] != domain.RoleUser {
		t.Fatalf("unexpected audit %+v", audit.records)
	}
}

func TestUserServiceSetRoleValidation(t *testing.T) {
	repo, claims, _ := newUserFixture()
	svc, _ := NewUserService(UserServiceDeps{Users: repo, Claims: claims})

	if _, err := svc.SetRole(context.Background(), SetUserRoleCommand{ActorID: "admin-1", UserID: "user-1", Role: "owner"}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := svc.SetRole(context.Background(), SetUserRoleCommand{ActorID: "admin-1", UserID: "admin-1", Role: "user"}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected self demotion rejected, got %v", err)
	}
	if _, err := svc.SetRole(context.Background(), SetUserRoleCommand{ActorID: "admin-1", UserID: "ghost", Role: "admin"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(claims.claims) != 0 {
		t.Fatalf("expected no claims written, got %v", claims.claims)
	}
}

func TestUserServiceSetRoleClaimFailureLeavesStoreUntouched(t *testing.T) {
	repo, claims, audit := newUserFixture()
	claims.err = errors.New("identity provider down")
	svc, _ := NewUserService(UserServiceDeps{Users: repo, Claims: claims, Audit: audit})

	_, err := svc.SetRole(context.Background(), SetUserRoleCommand{ActorID: "admin-1", UserID: "user-1", Role: "admin"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if repo.profiles["user-1"].Role != domain.RoleUser {
		t.Fatalf("expected stored role unchanged")
	}
	if len(audit.records) != 0 {
		t.Fatalf("expected no audit record")
	}
}

func TestUserServiceGetProfile(t *testing.T) {
	repo, _, _ := newUserFixture()
	svc, _ := NewUserService(UserServiceDeps{Users: repo})

	profile, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil || profile.Email != "u1@example.com" {
		t.Fatalf("unexpected profile %+v (%v)", profile, err)
	}
	if _, err := svc.GetProfile(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type stubFavoriteRepo struct {
	favorites map[string]domain.Favorite
}

func (s *stubFavoriteRepo) List(context.Context, string) ([]domain.Favorite, error) {
	out := make([]domain.Favorite, 0, len(s.favorites))
	for _, favorite := range s.favorites {
		out = append(out, favorite)
	}
	return out, nil
}

func (s *stubFavoriteRepo) Add(_ context.Context, _ string, favorite domain.Favorite) error {
	s.favorites[favorite.ProductID] = favorite
	return nil
}

func (s *stubFavoriteRepo) Remove(_ context.Context, _ string, productID string) error {
	delete(s.favorites, productID)
	return nil
}

func TestFavoriteServiceAddListRemove(t *testing.T) {
	repo := &stubFavoriteRepo{favorites: map[string]domain.Favorite{}}
	now := time.Date(2025, 4, 4, 0, 0, 0, 0, time.UTC)
	svc, err := NewFavoriteService(FavoriteServiceDeps{Favorites: repo, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("NewFavoriteService: %v", err)
	}

	if err := svc.Add(context.Background(), "user-1", " biryani "); err != nil {
		t.Fatalf("Add: %v", err)
	}
	favorites, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(favorites) != 1 || favorites[0].ProductID != "biryani" || !favorites[0].AddedAt.Equal(now) {
		t.Fatalf("unexpected favorites %+v", favorites)
	}
	if err := svc.Remove(context.Background(), "user-1", "biryani"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(repo.favorites) != 0 {
		t.Fatalf("expected favorite removed")
	}
}

func TestFavoriteServiceValidation(t *testing.T) {
	svc, _ := NewFavoriteService(FavoriteServiceDeps{Favorites: &stubFavoriteRepo{favorites: map[string]domain.Favorite{}}})

	if err := svc.Add(context.Background(), "user-1", ""); !errors.Is(err, ErrFavoriteInvalidInput) {
		t.Fatalf("expected invalid input for blank id, got %v", err)
	}
	if err := svc.Add(context.Background(), "user-1", "a/b"); !errors.Is(err, ErrFavoriteInvalidInput) {
		t.Fatalf("expected invalid input for path id, got %v", err)
	}
}

var (
	_ repositories.UserRepository     = (*stubUserRepo)(nil)
	_ repositories.FavoriteRepository = (*stubFavoriteRepo)(nil)
	_ RoleClaimSetter                 = (*stubClaimSetter)(nil)
)
