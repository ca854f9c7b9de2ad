package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goldenzaika/api/internal/services"
)

func (h *MeHandlers) favoriteRoutes(r chi.Router) {
	r.Get("/", h.listFavorites)
	r.Post("/", h.addFavoriteFromBody)
	r.Put("/{productID}", h.addFavorite)
	r.Delete("/{productID}", h.removeFavorite)
}

type favoriteProductPayload struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	ImageURL  string      `json:"imageUrl,omitempty"`
	Category  string      `json:"category,omitempty"`
	Available bool        `json:"available"`
}

type favoritePayload struct {
	ProductID string                  `json:"productId"`
	AddedAt   string                  `json:"addedAt,omitempty"`
	Product   *favoriteProductPayload `json:"product,omitempty"`
}

func buildFavoritePayload(fav services.Favorite) favoritePayload {
	payload := favoritePayload{
		ProductID: fav.ProductID,
		AddedAt:   formatTime(fav.AddedAt),
	}
	if p := fav.Product; p != nil {
		payload.Product = &favoriteProductPayload{
			ID:        p.ID,
			Name:      p.Name,
			Price:     money(p.Price),
			ImageURL:  p.ImageURL,
			Category:  p.Category,
			Available: p.Available,
		}
	}
	return payload
}

func (h *MeHandlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.favorites == nil {
		writeUnavailable(ctx, w, "favorite")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	favorites, err := h.favorites.List(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]favoritePayload, 0, len(favorites))
	for _, fav := range favorites {
		payload = append(payload, buildFavoritePayload(fav))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"favorites": payload,
	})
}

type addFavoriteRequest struct {
	ProductID string `json:"productId"`
}

func (h *MeHandlers) addFavoriteFromBody(w http.ResponseWriter, r *http.Request) {
	var req addFavoriteRequest
	if !decodeJSONBody(w, r, maxProfileBodySize, &req) {
		return
	}
	h.saveFavorite(w, r, req.ProductID)
}

func (h *MeHandlers) addFavorite(w http.ResponseWriter, r *http.Request) {
	h.saveFavorite(w, r, chi.URLParam(r, "productID"))
}

func (h *MeHandlers) saveFavorite(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.favorites == nil {
		writeUnavailable(ctx, w, "favorite")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.favorites.Add(ctx, identity.UID, productID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Added to favorites",
	})
}

func (h *MeHandlers) removeFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.favorites == nil {
		writeUnavailable(ctx, w, "favorite")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.favorites.Remove(ctx, identity.UID, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Removed from favorites",
	})
}
