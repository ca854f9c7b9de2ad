package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/goldenzaika/api/internal/domain"
)

// DefaultInterval matches the storefront's order tracking cadence.
const DefaultInterval = 30 * time.Second

var (
	// ErrPermanent marks fetch failures that retrying cannot fix, e.g. a missing order or a
	// revoked credential. Run stops and returns them.
	ErrPermanent = errors.New("poller: permanent fetch failure")
	// ErrMissingOrderID is returned when Run is called without an order id.
	ErrMissingOrderID = errors.New("poller: order id is required")
)

// Snapshot is the slice of an order the poller tracks.
type Snapshot struct {
	OrderID       string
	Status        domain.OrderStatus
	PaymentStatus string
	UpdatedAt     time.Time
}

// Terminal reports whether the order can no longer change status.
func (s Snapshot) Terminal() bool {
	return s.Status.IsTerminal()
}

// Fetcher loads the current state of an order.
type Fetcher interface {
	FetchOrder(ctx context.Context, orderID string) (Snapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, orderID string) (Snapshot, error)

// FetchOrder implements Fetcher.
func (f FetcherFunc) FetchOrder(ctx context.Context, orderID string) (Snapshot, error) {
	return f(ctx, orderID)
}

// ChangeFunc is notified once for every observed status change. previous.Status is empty for
// the first observation when no initial status was supplied.
type ChangeFunc func(ctx context.Context, previous, current Snapshot)

// Poller re-fetches a single order on a fixed interval until it reaches a terminal status.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	onChange ChangeFunc
	initial  domain.OrderStatus
	logger   *zap.Logger
}

// Option customises a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithOnChange registers the change notification.
func WithOnChange(fn ChangeFunc) Option {
	return func(p *Poller) {
		p.onChange = fn
	}
}

// WithInitialStatus seeds the last known status, as when the caller already rendered the order.
// The first fetch then only notifies if the status moved.
func WithInitialStatus(status domain.OrderStatus) Option {
	return func(p *Poller) {
		p.initial = status
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New constructs a Poller around fetcher.
func New(fetcher Fetcher, opts ...Option) (*Poller, error) {
	if fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Run fetches immediately and then once per interval. It returns the terminal snapshot once the
// order is Delivered or Cancelled, the context error when ctx ends first, or a permanent fetch
// error. Transient fetch errors are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context, orderID string) (Snapshot, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Snapshot{}, ErrMissingOrderID
	}

	last := Snapshot{OrderID: orderID, Status: p.initial}
	if last.Terminal() {
		return last, nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logger := p.logger.With(zap.String("orderId", orderID))
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		current, err := p.fetcher.FetchOrder(ctx, orderID)
		switch {
		case err == nil:
			failures = 0
			if current.OrderID == "" {
				current.OrderID = orderID
			}
			if current.Status != last.Status {
				if p.onChange != nil {
					p.onChange(ctx, last, current)
				}
			}
			last = current
			if last.Terminal() {
				return last, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		case errors.Is(err, ErrPermanent):
			return last, err
		default:
			failures++
			logger.Warn("order fetch failed", zap.Int("consecutiveFailures", failures), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}
