package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/goldenzaika/api/internal/domain"
	"github.com/goldenzaika/api/internal/repositories"
)

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Claims RoleClaimSetter
	Audit  AuditLogService
	Clock  func() time.Time
	Logger ServiceLogger
}

type userService struct {
	users  repositories.UserRepository
	claims RoleClaimSetter
	audit  AuditLogService
	clock  func() time.Time
	logger ServiceLogger
}

// NewUserService wires dependencies into a concrete UserService implementation. Without Claims, role
// changes only reach the user document.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	return &userService{
		users:  deps.Users,
		claims: deps.Claims,
		audit:  auditOrNoop(deps.Audit),
		clock:  utcClock(deps.Clock),
		logger: serviceLogger(deps.Logger),
	}, nil
}

// ResolveRole implements the authenticator's role lookup.
func (s *userService) ResolveRole(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", newServiceError(ErrUserInvalidInput, "invalid_request", "User is required")
	}
	role, err := s.users.Role(ctx, userID)
	if err != nil {
		return "", translateRepoError(err, nil)
	}
	return role, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, newServiceError(ErrUserInvalidInput, "invalid_request", "User is required")
	}
	profile, err := s.users.Get(ctx, userID)
	if err != nil {
		return UserProfile{}, translateRepoError(err, ErrUserNotFound)
	}
	return profile, nil
}

// SetRole changes a user's role in the identity provider claims and in the user document. The
// claim is written first so a failure leaves both unchanged.
func (s *userService) SetRole(ctx context.Context, cmd SetUserRoleCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, newServiceError(ErrUserInvalidInput, "invalid_request", "User is required")
	}
	role := strings.ToLower(strings.TrimSpace(cmd.Role))
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return UserProfile{}, newServiceError(ErrUserInvalidInput, "invalid_role", "Role must be user or admin")
	}
	if userID == strings.TrimSpace(cmd.ActorID) && role != domain.RoleAdmin {
		return UserProfile{}, newServiceError(ErrUserInvalidInput, "invalid_request", "You cannot remove your own admin role")
	}

	profile, err := s.users.Get(ctx, userID)
	if err != nil {
		return UserProfile{}, translateRepoError(err, ErrUserNotFound)
	}
	previous := profile.Role

	if s.claims != nil {
		if err := s.claims.SetRoleClaim(ctx, userID, role); err != nil {
			return UserProfile{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
	}
	now := s.clock()
	if err := s.users.SetRole(ctx, userID, role, now); err != nil {
		s.logger(ctx, "user.role_update_failed", map[string]any{"userId": userID, "role": role, "error": err.Error()})
		return UserProfile{}, translateRepoError(err, ErrUserNotFound)
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		Action:    "UPDATE_USER_ROLE",
		TargetRef: "users/" + userID,
		Details:   map[string]any{"userId": userID, "role": role, "previousRole": previous},
	})
	s.logger(ctx, "user.role_updated", map[string]any{"userId": userID, "role": role, "previousRole": previous})

	profile.Role = role
	profile.UpdatedAt = now
	return profile, nil
}
