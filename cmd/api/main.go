package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/goldenzaika/api/internal/di"
	"github.com/goldenzaika/api/internal/handlers"
	"github.com/goldenzaika/api/internal/payments"
	"github.com/goldenzaika/api/internal/platform/auth"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/platform/config"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/platform/idempotency"
	"github.com/goldenzaika/api/internal/platform/jobs"
	"github.com/goldenzaika/api/internal/platform/observability"
	"github.com/goldenzaika/api/internal/platform/ratelimit"
	"github.com/goldenzaika/api/internal/platform/secrets"
	"github.com/goldenzaika/api/internal/repositories"
	"github.com/goldenzaika/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("PSP.StripeAPIKey", "PSP.CheckoutSigningSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	// Redis backs the cache, rate limits and idempotency keys. Without an address every one of
	// them falls back to process memory, which only holds for a single instance.
	var (
		redisClient      *redis.Client
		cacheStore       cache.Store
		idempotencyStore idempotency.Store
	)
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		cacheStore = cache.NewRedisStore(redisClient)
		idempotencyStore = idempotency.NewRedisStore(redisClient)
	} else {
		logger.Warn("redis not configured; using in-process cache, rate limits and idempotency store")
		cacheStore = cache.NewMemoryStore(nil)
		idempotencyStore = idempotency.NewMemoryStore()
	}
	cacheLayer := cache.NewLayer(cacheStore, logger.Named("cache"))

	repos, err := di.NewFirestoreRepositories(firestoreProvider, cacheLayer, cfg.Cache)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	repos.Health, err = newHealthRepository(firestoreClient, cacheLayer, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:    cfg.PSP.StripeAPIKey,
		AccountID: cfg.PSP.StripeAccountID,
		Logger:    payments.StripeLogger(observability.NewEventLogger(logger, "stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}
	signatures, err := payments.NewSignatureVerifier(cfg.PSP.CheckoutSigningSecret)
	if err != nil {
		logger.Fatal("failed to initialise checkout signature verifier", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}

	var events services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.OrderTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicName)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		events = publisher
	} else {
		logger.Info("order event publishing disabled; API_PUBSUB_ORDER_TOPIC is empty")
	}

	container, err := di.NewContainer(cfg, repos, di.Collaborators{
		Gateway:    gateway,
		Signatures: signatures,
		Claims:     firebaseVerifier,
		Events:     events,
		Build:      buildInfo,
		Logger:     logger,
		Clock:      time.Now,
	})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	svc := container.Services

	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithRoleResolver(svc.Users),
		auth.WithLogger(logger.Named("auth")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	checkoutHandlers := handlers.NewCheckoutHandlers(svc.Zones, svc.Coupons)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	meHandlers := handlers.NewMeHandlers(authenticator, handlers.MeDeps{
		Users:     svc.Users,
		Addresses: svc.Addresses,
		Favorites: svc.Favorites,
	})
	adminHandlers := handlers.NewAdminHandlers(authenticator, handlers.AdminDeps{
		Zones:   svc.Zones,
		Coupons: svc.Coupons,
		Orders:  svc.Orders,
		Users:   svc.Users,
		System:  svc.System,
	})
	internalHandlers := handlers.NewInternalHandlers(idempotencyStore, cfg.Idempotency.CleanupBatchSize, time.Now)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var maintenance atomic.Bool
	maintenance.Store(cfg.Features.MaintenanceMode)

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithOptionalKey(),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	rateLogger := logger.Named("ratelimit")
	limit := func(tier string, t config.RateLimitTier) func(http.Handler) http.Handler {
		var limiter ratelimit.Limiter
		if redisClient != nil {
			limiter = ratelimit.NewRedisLimiter(redisClient, tier, t.Limit, t.Window, nil)
		} else {
			limiter = ratelimit.NewMemoryLimiter(t.Limit, t.Window, nil)
		}
		return ratelimit.Middleware(tier, limiter, ratelimit.CallerKey, rateLogger)
	}
	strict := limit("strict", cfg.RateLimits.Strict)
	moderate := limit("moderate", cfg.RateLimits.Moderate)
	loose := limit("loose", cfg.RateLimits.Loose)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithAPIMiddlewares(handlers.MaintenanceMode(maintenance.Load)),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCouponRoutes(checkoutHandlers.CouponRoutes),
		handlers.WithZoneRoutes(checkoutHandlers.ZoneRoutes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithGroupMiddlewares(handlers.GroupCoupons, strict),
		handlers.WithGroupMiddlewares(handlers.GroupPayments, strict, idempotencyMiddleware),
		handlers.WithGroupMiddlewares(handlers.GroupOrders, moderate),
		handlers.WithGroupMiddlewares(handlers.GroupMe, moderate),
		handlers.WithGroupMiddlewares(handlers.GroupAdmin, moderate),
		handlers.WithGroupMiddlewares(handlers.GroupZones, loose),
		handlers.WithGroupMiddlewares(handlers.GroupCheckout, loose),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithGroupMiddlewares(handlers.GroupInternal, oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// SIGUSR1 flips maintenance mode without a redeploy.
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	go func() {
		for range toggle {
			enabled := !maintenance.Load()
			maintenance.Store(enabled)
			logger.Warn("maintenance mode toggled", zap.Bool("enabled", enabled))
		}
	}()

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("goldenzaika api listening",
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
			zap.Bool("maintenance", maintenance.Load()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")
	signal.Stop(toggle)
	close(toggle)

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, layer *cache.Layer, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if layer != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  time.Second,
			Optional: true,
			Check:    layer.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(jwks, logger)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
