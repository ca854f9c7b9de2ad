package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/goldenzaika/api/internal/platform/httpx"
	"github.com/goldenzaika/api/internal/platform/requestctx"
	"go.uber.org/zap"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the Firebase ID token failed verification.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// RoleResolver looks up the stored role of a user when the token carries no role claim.
type RoleResolver interface {
	ResolveRole(ctx context.Context, uid string) (string, error)
}

// Authenticator turns Firebase bearer tokens into request identities.
type Authenticator struct {
	verifier  TokenVerifier
	roles     RoleResolver
	roleClaim string
	timeout   time.Duration
	logger    *zap.Logger
}

// Option customises Authenticator.
type Option func(*Authenticator)

// WithRoleResolver consults resolver for callers whose token has no role claim.
func WithRoleResolver(resolver RoleResolver) Option {
	return func(a *Authenticator) {
		a.roles = resolver
	}
}

// WithRoleClaim overrides the custom claim holding the role.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds token verification and role lookup.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger for role lookup failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the bearer token and, when allowedRoles is non-empty, requires the
// caller to hold one of them.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "Unauthorized: missing bearer token")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
			if err != nil {
				respondVerificationError(ctx, w, err)
				return
			}

			identity := &Identity{
				UID:   token.UID,
				Email: claimAsString(token.Claims, "email"),
				Role:  normaliseRole(claimAsString(token.Claims, a.roleClaim)),
				token: token,
			}
			switch {
			case identity.Role == "":
				identity.Role = a.lookupRole(verifyCtx, token.UID)
			case identity.Role != RoleUser && a.roles != nil:
				// Elevated claims are confirmed against the store so a demotion applies before the token expires.
				identity.Role = a.lookupRole(verifyCtx, token.UID)
			}

			if len(allowed) > 0 && !contains(allowed, identity.Role) {
				respondAuthError(ctx, w, http.StatusForbidden, "forbidden",
					"Forbidden: Insufficient permissions. Required: "+strings.Join(allowed, ", "))
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithActor(ctx, identity.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookupRole falls back to the least privileged role when the store cannot answer.
func (a *Authenticator) lookupRole(ctx context.Context, uid string) string {
	if a.roles == nil {
		return RoleUser
	}
	role, err := a.roles.ResolveRole(ctx, uid)
	if err != nil {
		a.logger.Warn("role lookup failed", zap.String("uid", uid), zap.Error(err))
		return RoleUser
	}
	if role = normaliseRole(role); role != "" {
		return role
	}
	return RoleUser
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func respondVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "Unauthorized: token expired")
	default:
		respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "Unauthorized: invalid token")
	}
}
