// Command orderwatch follows a single order until it is delivered or cancelled, logging every
// status change. It polls the API the same way the storefront's order page does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/goldenzaika/api/internal/platform/config"
	"github.com/goldenzaika/api/internal/platform/observability"
	"github.com/goldenzaika/api/internal/poller"
)

func main() {
	env, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	var (
		apiURL   = flag.String("api", envOr(env, "ORDERWATCH_API_URL", "http://localhost:8080"), "API base URL")
		orderID  = flag.String("order", "", "order id to follow")
		token    = flag.String("token", env["ORDERWATCH_TOKEN"], "Firebase ID token (defaults to $ORDERWATCH_TOKEN)")
		interval = flag.Duration("interval", poller.DefaultInterval, "poll interval")
	)
	flag.Parse()

	if strings.TrimSpace(*orderID) == "" {
		fmt.Fprintln(os.Stderr, "orderwatch: -order is required")
		flag.Usage()
		os.Exit(2)
	}

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("orderwatch").With(zap.String("orderId", *orderID))

	if strings.TrimSpace(*token) == "" {
		logger.Warn("no token supplied; the API will reject the request")
	}

	fetcher, err := poller.NewHTTPFetcher(*apiURL, poller.StaticToken(*token))
	if err != nil {
		logger.Fatal("failed to initialise fetcher", zap.Error(err))
	}
	p, err := poller.New(fetcher,
		poller.WithInterval(*interval),
		poller.WithLogger(logger),
		poller.WithOnChange(func(_ context.Context, previous, current poller.Snapshot) {
			if previous.Status == "" {
				logger.Info("order status", zap.String("status", string(current.Status)), zap.String("paymentStatus", current.PaymentStatus))
				return
			}
			logger.Info("order status changed",
				zap.String("from", string(previous.Status)),
				zap.String("to", string(current.Status)),
				zap.String("paymentStatus", current.PaymentStatus),
				zap.Time("updatedAt", current.UpdatedAt),
			)
		}),
	)
	if err != nil {
		logger.Fatal("failed to initialise poller", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	final, err := p.Run(ctx, *orderID)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("stopped", zap.String("lastStatus", string(final.Status)))
	case err != nil:
		logger.Error("polling failed", zap.Error(err))
		os.Exit(1)
	default:
		logger.Info("order reached a final status",
			zap.String("status", string(final.Status)),
			zap.Duration("watched", time.Since(started).Truncate(time.Second)),
		)
	}
}

func envOr(env map[string]string, key, fallback string) string {
	if value := strings.TrimSpace(env[key]); value != "" {
		return value
	}
	return fallback
}
