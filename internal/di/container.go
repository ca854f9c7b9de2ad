package di

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goldenzaika/api/internal/payments"
	"github.com/goldenzaika/api/internal/platform/cache"
	"github.com/goldenzaika/api/internal/platform/config"
	pfirestore "github.com/goldenzaika/api/internal/platform/firestore"
	"github.com/goldenzaika/api/internal/platform/observability"
	"github.com/goldenzaika/api/internal/repositories"
	"github.com/goldenzaika/api/internal/repositories/cached"
	firestoreRepo "github.com/goldenzaika/api/internal/repositories/firestore"
	"github.com/goldenzaika/api/internal/services"
)

// Repositories is the storage surface the services are built on.
type Repositories struct {
	Zones     repositories.ZoneRepository
	Coupons   repositories.CouponRepository
	Orders    repositories.OrderRepository
	Intents   repositories.PaymentIntentRepository
	Addresses repositories.AddressRepository
	Favorites repositories.FavoriteRepository
	Products  repositories.ProductRepository
	Users     repositories.UserRepository
	AuditLogs repositories.AuditLogRepository
	Health    repositories.HealthRepository
}

// Collaborators are the non-storage dependencies: the payment gateway, Firebase claims and the
// event bus. Events may be nil when publishing is disabled.
type Collaborators struct {
	Gateway    payments.Gateway
	Signatures services.SignatureChecker
	Claims     services.RoleClaimSetter
	Events     services.OrderEventPublisher
	Build      services.BuildInfo
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Zones     services.ZoneService
	Coupons   services.CouponService
	Orders    services.OrderService
	Payments  services.PaymentService
	Addresses services.AddressService
	Favorites services.FavoriteService
	Users     services.UserService
	System    services.SystemService
	Audit     services.AuditLogService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewFirestoreRepositories builds the Firestore repositories and fronts the hot ones with the
// cache layer. A nil layer leaves every read going to Firestore. Health is left to the caller.
func NewFirestoreRepositories(provider *pfirestore.Provider, layer *cache.Layer, ttls config.CacheConfig) (Repositories, error) {
	if provider == nil {
		return Repositories{}, errors.New("firestore provider is required")
	}

	zones, err := firestoreRepo.NewZoneRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("zone repository: %w", err)
	}
	coupons, err := firestoreRepo.NewCouponRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("coupon repository: %w", err)
	}
	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("order repository: %w", err)
	}
	intents, err := firestoreRepo.NewPaymentIntentRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("payment intent repository: %w", err)
	}
	addresses, err := firestoreRepo.NewAddressRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("address repository: %w", err)
	}
	favorites, err := firestoreRepo.NewFavoriteRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("favorite repository: %w", err)
	}
	products, err := firestoreRepo.NewProductRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("product repository: %w", err)
	}
	users, err := firestoreRepo.NewUserRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("user repository: %w", err)
	}
	audit, err := firestoreRepo.NewAuditLogRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("audit log repository: %w", err)
	}

	return Repositories{
		Zones:     cached.NewZoneRepository(zones, layer, ttls.ZonesTTL),
		Coupons:   cached.NewCouponRepository(coupons, layer, ttls.CouponsTTL),
		Orders:    cached.NewOrderRepository(orders, layer, ttls),
		Intents:   intents,
		Addresses: cached.NewAddressRepository(addresses, layer, ttls.AddressesTTL),
		Favorites: cached.NewFavoriteRepository(favorites, products, layer, ttls.FavoritesTTL),
		Products:  products,
		Users:     cached.NewUserRepository(users, layer, ttls.RoleTTL),
		AuditLogs: audit,
	}, nil
}

// NewContainer constructs the service graph. Audit logging is built first because every
// mutating service records into it.
func NewContainer(cfg config.Config, repos Repositories, collab Collaborators) (*Container, error) {
	svc, err := buildServices(cfg, repos, collab)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, collab Collaborators) (Services, error) {
	var svc Services

	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := collab.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eventLogger := func(name string) services.ServiceLogger {
		return services.ServiceLogger(observability.NewEventLogger(logger, name))
	}

	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: repos.AuditLogs,
		Clock:      clock,
		RequestID:  middleware.GetReqID,
		Logger:     eventLogger("audit"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = audit

	svc.Zones, err = services.NewZoneService(services.ZoneServiceDeps{
		Zones:  repos.Zones,
		Audit:  audit,
		Clock:  clock,
		Logger: eventLogger("zones"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build zone service: %w", err)
	}

	enableCoupons := cfg.Features.EnableCoupons
	svc.Coupons, err = services.NewCouponService(services.CouponServiceDeps{
		Coupons: repos.Coupons,
		Audit:   audit,
		Enabled: func() bool { return enableCoupons },
		Clock:   clock,
		Logger:  eventLogger("coupons"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}

	taxRate := cfg.Pricing.TaxRate
	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:    repos.Orders,
		Products:  repos.Products,
		Intents:   repos.Intents,
		Addresses: repos.Addresses,
		Coupons:   svc.Coupons,
		Zones:     svc.Zones,
		Gateway:   collab.Gateway,
		Audit:     audit,
		Events:    collab.Events,
		TaxRate:   &taxRate,
		Currency:  cfg.PSP.Currency,
		Clock:     clock,
		Logger:    eventLogger("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Payments, err = services.NewPaymentService(services.PaymentServiceDeps{
		Gateway:  collab.Gateway,
		Verifier: collab.Signatures,
		Intents:  repos.Intents,
		Orders:   svc.Orders,
		Currency: cfg.PSP.Currency,
		Clock:    clock,
		Logger:   eventLogger("payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	svc.Addresses, err = services.NewAddressService(services.AddressServiceDeps{
		Addresses: repos.Addresses,
		Clock:     clock,
		Logger:    eventLogger("addresses"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}

	svc.Favorites, err = services.NewFavoriteService(services.FavoriteServiceDeps{
		Favorites: repos.Favorites,
		Clock:     clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build favorite service: %w", err)
	}

	svc.Users, err = services.NewUserService(services.UserServiceDeps{
		Users:  repos.Users,
		Claims: collab.Claims,
		Audit:  audit,
		Clock:  clock,
		Logger: eventLogger("users"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}

	// Readiness is optional; without a health repository /readyz reports the service as unwired.
	if repos.Health != nil {
		svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            clock,
			Build:            collab.Build,
			Audit:            audit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}
