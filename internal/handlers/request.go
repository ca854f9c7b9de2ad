package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/platform/httpx"
)

const defaultBodyLimit = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes the request body into dest, writing the error response itself
// when it fails. Unknown fields are ignored; storefront clients post whole cart objects.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dest any) bool {
	return decodeBody(w, r, limit, dest, false)
}

// decodeStrictJSONBody is decodeJSONBody for admin writes, where an unknown field is a typo.
func decodeStrictJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dest any) bool {
	return decodeBody(w, r, limit, dest, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dest any, strict bool) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		code := "invalid_request"
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
			code = "payload_too_large"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), status))
		return false
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dest); err != nil || decoder.More() {
		writeBadRequest(ctx, w, "Invalid JSON payload")
		return false
	}
	return true
}

// optionalJSONBody decodes dest when a body is present and leaves it untouched otherwise.
func optionalJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dest any) bool {
	if r.ContentLength == 0 {
		return true
	}
	body, err := readLimitedBody(r, limit)
	if errors.Is(err, errEmptyBody) {
		return true
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		writeBadRequest(r.Context(), w, "Invalid JSON payload")
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// requireIdentity returns the authenticated caller or writes a 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// money renders an amount as a JSON number with two decimals.
func money(value decimal.Decimal) json.Number {
	return json.Number(value.StringFixed(2))
}

func moneyPtr(value *decimal.Decimal) *json.Number {
	if value == nil {
		return nil
	}
	n := money(*value)
	return &n
}
