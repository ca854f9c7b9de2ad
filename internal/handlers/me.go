package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

// MeHandlers serves the authenticated user's profile, address book and favorites.
type MeHandlers struct {
	authn     *auth.Authenticator
	users     services.UserService
	addresses services.AddressService
	favorites services.FavoriteService
}

// MeDeps bundles the services behind /me.
type MeDeps struct {
	Users     services.UserService
	Addresses services.AddressService
	Favorites services.FavoriteService
}

// NewMeHandlers constructs handlers for /me routes.
func NewMeHandlers(authn *auth.Authenticator, deps MeDeps) *MeHandlers {
	return &MeHandlers{
		authn:     authn,
		users:     deps.Users,
		addresses: deps.Addresses,
		favorites: deps.Favorites,
	}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Route("/addresses", h.addressRoutes)
	r.Route("/favorites", h.favoriteRoutes)
}

type profilePayload struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	return profilePayload{
		ID:          profile.ID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Role:        profile.Role,
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

// getProfile answers from the verified identity when the user has no stored profile yet.
func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	payload := profilePayload{ID: identity.UID, Email: identity.Email, Role: identity.Role}
	if h.users != nil {
		profile, err := h.users.GetProfile(ctx, identity.UID)
		switch {
		case err == nil:
			payload = buildProfilePayload(profile)
			payload.Role = identity.Role
		case !isNotFound(err):
			writeServiceError(ctx, w, err)
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    payload,
	})
}

func isNotFound(err error) bool {
	return serviceHTTPError(err).Status == http.StatusNotFound
}
