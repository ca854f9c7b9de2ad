package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/goldenzaika/api/internal/domain"
)

// Role names accepted by RequireFirebaseAuth.
const (
	RoleUser  = domain.RoleUser
	RoleAdmin = domain.RoleAdmin
)

// Identity is the verified caller of a request.
type Identity struct {
	UID   string
	Email string
	Role  string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token, when the identity came from one.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// IsAdmin reports whether the caller may operate on other users' data.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type contextKey struct{}

// WithIdentity stores identity on ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
