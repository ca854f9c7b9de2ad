package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/goldenzaika/api/internal/domain"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxResponseBytes    = 1 << 20
)

// TokenSource returns the bearer token for the next request. Firebase ID tokens expire hourly,
// so callers that poll for long should refresh here.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// HTTPFetcher reads orders from the API's GET /api/v1/orders/{id} endpoint.
type HTTPFetcher struct {
	baseURL *url.URL
	tokens  TokenSource
	client  *http.Client
}

// HTTPFetcherOption customises HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher)

// WithHTTPClient overrides the transport client.
func WithHTTPClient(client *http.Client) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewHTTPFetcher builds a fetcher for the API rooted at baseURL, e.g. https://api.example.com.
func NewHTTPFetcher(baseURL string, tokens TokenSource, opts ...HTTPFetcherOption) (*HTTPFetcher, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("poller: invalid api base url %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("poller: token source is required")
	}
	f := &HTTPFetcher{
		baseURL: parsed,
		tokens:  tokens,
		client:  &http.Client{Timeout: defaultFetchTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

type orderEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Order   *struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PaymentStatus string `json:"paymentStatus"`
		UpdatedAt     string `json:"updatedAt"`
	} `json:"order"`
}

// FetchOrder implements Fetcher. 401, 403 and 404 responses are permanent.
func (f *HTTPFetcher) FetchOrder(ctx context.Context, orderID string) (Snapshot, error) {
	token, err := f.tokens(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("poller: obtain token: %w", err)
	}

	endpoint := f.baseURL.JoinPath("api", "v1", "orders", orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("poller: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("poller: fetch order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Snapshot{}, fmt.Errorf("poller: read response: %w", err)
	}
	var envelope orderEnvelope
	decodeErr := json.Unmarshal(body, &envelope)

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return Snapshot{}, permanent("status %d %s", resp.StatusCode, describe(envelope))
	case resp.StatusCode != http.StatusOK:
		return Snapshot{}, fmt.Errorf("poller: unexpected status %d %s", resp.StatusCode, describe(envelope))
	case decodeErr != nil:
		return Snapshot{}, fmt.Errorf("poller: decode response: %w", decodeErr)
	case envelope.Order == nil || strings.TrimSpace(envelope.Order.Status) == "":
		return Snapshot{}, errors.New("poller: response carried no order status")
	}

	snapshot := Snapshot{
		OrderID:       envelope.Order.ID,
		Status:        domain.OrderStatus(envelope.Order.Status),
		PaymentStatus: envelope.Order.PaymentStatus,
	}
	if envelope.Order.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, envelope.Order.UpdatedAt); err == nil {
			snapshot.UpdatedAt = ts
		}
	}
	return snapshot, nil
}

func describe(envelope orderEnvelope) string {
	switch {
	case envelope.Error != "" && envelope.Message != "":
		return envelope.Error + ": " + envelope.Message
	case envelope.Error != "":
		return envelope.Error
	default:
		return envelope.Message
	}
}
