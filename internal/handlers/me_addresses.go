package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/goldenzaika/api/internal/services"
)

func (h *MeHandlers) addressRoutes(r chi.Router) {
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Route("/{addressID}", func(r chi.Router) {
		r.Put("/", h.updateAddress)
		r.Delete("/", h.deleteAddress)
		r.Post("/default", h.setDefaultAddress)
	})
}

type addressPayload struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
	IsDefault bool   `json:"isDefault"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:        addr.ID,
		Label:     addr.Label,
		Street:    addr.Street,
		City:      addr.City,
		State:     addr.State,
		Zip:       addr.Zip,
		Phone:     addr.Phone,
		IsDefault: addr.IsDefault,
		CreatedAt: formatTime(addr.CreatedAt),
		UpdatedAt: formatTime(addr.UpdatedAt),
	}
}

type addressRequest struct {
	Label     *string `json:"label"`
	Street    *string `json:"street"`
	City      *string `json:"city"`
	State     *string `json:"state"`
	Zip       *string `json:"zip"`
	Phone     *string `json:"phone"`
	IsDefault *bool   `json:"isDefault"`
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	addresses, err := h.addresses.List(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"addresses": payload,
	})
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addressRequest
	if !decodeJSONBody(w, r, maxProfileBodySize, &req) {
		return
	}

	saved, err := h.addresses.Create(ctx, services.CreateAddressCommand{
		UserID:    identity.UID,
		Label:     deref(req.Label),
		Street:    deref(req.Street),
		City:      deref(req.City),
		State:     deref(req.State),
		Zip:       deref(req.Zip),
		Phone:     deref(req.Phone),
		IsDefault: req.IsDefault != nil && *req.IsDefault,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+saved.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      saved.ID,
		"message": "Address added",
		"address": buildAddressPayload(saved),
	})
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addressRequest
	if !decodeJSONBody(w, r, maxProfileBodySize, &req) {
		return
	}

	saved, err := h.addresses.Update(ctx, services.UpdateAddressCommand{
		UserID:    identity.UID,
		AddressID: chi.URLParam(r, "addressID"),
		Label:     req.Label,
		Street:    req.Street,
		City:      req.City,
		State:     req.State,
		Zip:       req.Zip,
		Phone:     req.Phone,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Address updated",
		"address": buildAddressPayload(saved),
	})
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.addresses.Delete(ctx, identity.UID, chi.URLParam(r, "addressID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Address deleted",
	})
}

func (h *MeHandlers) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.addresses.SetDefault(ctx, identity.UID, chi.URLParam(r, "addressID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Default address updated",
	})
}
