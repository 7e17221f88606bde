package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/config"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/observability"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
	firestoreRepo "github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/memory"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

// healthReportCacheTTL absorbs load balancer probe bursts without hiding outages for long.
const healthReportCacheTTL = 2 * time.Second

// Repositories bundles the persistence contracts the services depend upon.
type Repositories struct {
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
	Reviews    repositories.ReviewRepository
	Carts      repositories.CartRepository
	Orders     repositories.OrderRepository
	Users      repositories.UserRepository
	Settings   repositories.SettingsRepository
}

// FirestoreRepositories builds the Firestore-backed repository set sharing one provider.
func FirestoreRepositories(provider *pfirestore.Provider) (Repositories, error) {
	var (
		repos Repositories
		err   error
	)
	if repos.Products, err = firestoreRepo.NewProductRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build product repository: %w", err)
	}
	if repos.Categories, err = firestoreRepo.NewCategoryRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build category repository: %w", err)
	}
	if repos.Reviews, err = firestoreRepo.NewReviewRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build review repository: %w", err)
	}
	if repos.Carts, err = firestoreRepo.NewCartRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build cart repository: %w", err)
	}
	if repos.Orders, err = firestoreRepo.NewOrderRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build order repository: %w", err)
	}
	if repos.Users, err = firestoreRepo.NewUserRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build user repository: %w", err)
	}
	if repos.Settings, err = firestoreRepo.NewSettingsRepository(provider); err != nil {
		return Repositories{}, fmt.Errorf("build settings repository: %w", err)
	}
	return repos, nil
}

// MemoryRepositories exposes an in-process store through the repository contracts.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Products:   store.Products(),
		Categories: store.Categories(),
		Reviews:    store.Reviews(),
		Carts:      store.Carts(),
		Orders:     store.Orders(),
		Users:      store.Users(),
		Settings:   store.Settings(),
	}
}

// Infrastructure carries the external adapters the services call out to. Payments, Uploads and
// Events are optional; services that cannot run without them are left nil and their routes
// answer 503.
type Infrastructure struct {
	Payments payments.Provider
	Uploads  services.ObjectUploader
	Events   services.OrderEventPublisher
	Health   repositories.HealthRepository
	Logger   *zap.Logger
	Meter    metric.Meter
	Build    services.BuildInfo
	Clock    func() time.Time
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Inventory services.InventoryService
	Cart      services.CartService
	Checkout  services.CheckoutService
	Payments  services.PaymentReconciler
	Orders    services.OrderService
	Catalog   services.CatalogService
	Reviews   services.ReviewService
	Users     services.UserService
	Settings  services.SettingsService
	System    services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services

	closers []func(context.Context) error
}

// NewContainer constructs the service graph on top of the given repositories.
func NewContainer(cfg config.Config, repos Repositories, infra Infrastructure) (*Container, error) {
	if repos.Products == nil || repos.Orders == nil || repos.Users == nil {
		return nil, errors.New("di: product, order and user repositories are required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(cfg, repos, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

// OnClose registers a release hook run by Close in reverse registration order.
func (c *Container) OnClose(fn func(context.Context) error) {
	if c == nil || fn == nil {
		return
	}
	c.closers = append(c.closers, fn)
}

// Close releases resources such as repository clients and publishers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildServices(cfg config.Config, repos Repositories, infra Infrastructure) (Services, error) {
	var svc Services
	logger := infra.Logger
	clock := infra.Clock

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products: repos.Products,
		Clock:    clock,
		Logger:   observability.EventLogger(logger.Named("inventory")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	if repos.Carts != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Carts:    repos.Carts,
			Products: repos.Products,
			Clock:    clock,
			Logger:   observability.EventLogger(logger.Named("cart")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	if repos.Categories != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products:   repos.Products,
			Categories: repos.Categories,
			Uploads:    infra.Uploads,
			Clock:      clock,
			Logger:     observability.EventLogger(logger.Named("catalog")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  repos.Orders,
		Uploads: infra.Uploads,
		Events:  infra.Events,
		Clock:   clock,
		Logger:  observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if repos.Reviews != nil {
		reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
			Reviews:  repos.Reviews,
			Products: repos.Products,
			Clock:    clock,
			Logger:   observability.EventLogger(logger.Named("reviews")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build review service: %w", err)
		}
		svc.Reviews = reviewSvc
	}

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:    repos.Users,
		Products: repos.Products,
		Clock:    clock,
		Logger:   observability.EventLogger(logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	if repos.Settings != nil {
		settingsSvc, err := services.NewSettingsService(services.SettingsServiceDeps{
			Settings: repos.Settings,
			Clock:    clock,
			Logger:   observability.EventLogger(logger.Named("settings")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build settings service: %w", err)
		}
		svc.Settings = settingsSvc
	}

	if infra.Payments != nil {
		rate, err := decimal.NewFromString(strings.TrimSpace(cfg.Payments.ConversionRate))
		if err != nil {
			return Services{}, fmt.Errorf("parse payment conversion rate: %w", err)
		}
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Products:           repos.Products,
			Orders:             repos.Orders,
			Payments:           infra.Payments,
			Events:             infra.Events,
			SettlementCurrency: cfg.Payments.Currency,
			ConversionRate:     rate,
			FrontendURL:        cfg.Payments.FrontendURL,
			Meter:              infra.Meter,
			Clock:              clock,
			Logger:             observability.EventLogger(logger.Named("checkout")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc

		reconciler, err := services.NewPaymentReconciler(services.PaymentReconcilerDeps{
			Orders:         repos.Orders,
			Payments:       infra.Payments,
			Events:         infra.Events,
			ReconcileAfter: cfg.Payments.ReconcileAfter,
			BatchSize:      cfg.Payments.ReconcileBatchSize,
			Meter:          infra.Meter,
			Clock:          clock,
			Logger:         observability.EventLogger(logger.Named("payments")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment reconciler: %w", err)
		}
		svc.Payments = reconciler
	}

	if infra.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            clock,
			Build:            infra.Build,
			CacheFor:         healthReportCacheTTL,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
