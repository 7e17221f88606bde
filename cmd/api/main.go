package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/di"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/handlers"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/config"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/idempotency"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/jobs"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/observability"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/secrets"
	platformstorage "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/storage"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/memory"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const (
	signInRateLimit       = 10
	signInRateWindow      = time.Minute
	idempotencyMaxBatches = 10
)

func main() {
	ctx := context.Background()

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
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	startedAt := time.Now().UTC()
	buildInfo := buildInfoFromEnv(envValues, cfg)

	var (
		repos            di.Repositories
		idempotencyStore idempotency.Store
		healthChecks     []repositories.DependencyCheck
		closers          []func(context.Context) error
	)

	switch cfg.Persistence.Driver {
	case config.PersistenceMemory:
		logger.Warn("using in-memory persistence; data is lost on restart")
		repos = di.MemoryRepositories(memory.NewStore())
		idempotencyStore = idempotency.NewMemoryStore()
		healthChecks = append(healthChecks, repositories.DependencyCheck{
			Name:  "memory",
			Check: func(context.Context) error { return nil },
		})
	default:
		firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
		firestoreClient, err := firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		closers = append(closers, firestoreProvider.Close)

		repos, err = di.FirestoreRepositories(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise repositories", zap.Error(err))
		}
		idempotencyStore = idempotency.NewFirestoreStore(firestoreProvider)
		healthChecks = append(healthChecks, firestoreHealthCheck(firestoreClient))
	}
	healthChecks = append(healthChecks, secretManagerHealthCheck(fetcher))

	healthRepo, err := repositories.NewDependencyHealthRepository(healthChecks)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	infra := di.Infrastructure{
		Health: healthRepo,
		Logger: logger,
		Build:  buildInfo,
		Clock:  time.Now,
	}

	if bucket := strings.TrimSpace(cfg.Storage.UploadsBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		closers = append(closers, func(context.Context) error { return storageClient.Close() })

		opts := []platformstorage.UploaderOption{platformstorage.WithMaxSize(cfg.Server.MaxUploadBytes)}
		if base := strings.TrimSpace(cfg.Storage.PublicBaseURL); base != "" {
			opts = append(opts, platformstorage.WithPublicBaseURL(base))
		}
		uploader, err := platformstorage.NewUploader(storageClient, bucket, opts...)
		if err != nil {
			logger.Fatal("failed to initialise uploader", zap.Error(err))
		}
		infra.Uploads = di.StorageUploads(uploader)
	} else {
		logger.Warn("uploads bucket not configured; payment slips and product images are disabled")
	}

	if topicID := strings.TrimSpace(cfg.Events.OrdersTopic); topicID != "" && cfg.Events.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicID)
		closers = append(closers, func(context.Context) error {
			topic.Stop()
			return pubsubClient.Close()
		})
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		infra.Events = publisher
	}

	if key := strings.TrimSpace(cfg.Payments.StripeAPIKey); key != "" {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        key,
			WebhookSecret: cfg.Payments.StripeWebhookSecret,
			Logger:        observability.EventLogger(logger.Named("stripe")),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		infra.Payments = provider
	} else {
		logger.Warn("stripe api key not configured; checkout and payment routes are disabled")
	}

	container, err := di.NewContainer(cfg, repos, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	for _, closer := range closers {
		container.OnClose(closer)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("resource close error", zap.Error(err))
		}
	}()
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithUserGetter(firebaseVerifier),
		auth.WithAdminResolver(profileAdminResolver(svc.Users)),
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
					removed, err := idempotency.Cleanup(runCtx, idempotencyStore, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize, idempotencyMaxBatches)
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

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	authHandlers := handlers.NewAuthHandlers(authenticator, svc.Users,
		handlers.WithSignInRateLimit(signInRateLimit, signInRateWindow, time.Now),
	)
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog, svc.Inventory)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	wishlistHandlers := handlers.NewWishlistHandlers(authenticator, svc.Users)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout, svc.Payments,
		handlers.WithCheckoutIdempotency(idempotencyMiddleware),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	settingsHandlers := handlers.NewSettingsHandlers(svc.Settings)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments)
	internalHandlers := handlers.NewInternalHandlers(svc.Payments,
		handlers.WithIdempotencyCleanup(idempotencyStore, cfg.Idempotency.CleanupBatchSize, idempotencyMaxBatches),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
		handlers.WithHealthStartedAt(startedAt),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		handlers.CORSMiddleware(cfg.Server.AllowedOrigins),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithProductRoutes(catalogHandlers.ProductRoutes, reviewHandlers.ProductRoutes),
		handlers.WithCategoryRoutes(catalogHandlers.CategoryRoutes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithWishlistRoutes(wishlistHandlers.Routes),
		handlers.WithOrderRoutes(checkoutHandlers.Routes, orderHandlers.Routes),
		handlers.WithSettingsRoutes(settingsHandlers.Routes),
		handlers.WithAdminRoutes(catalogHandlers.AdminRoutes, orderHandlers.AdminRoutes, settingsHandlers.AdminRoutes),
		handlers.WithAdminMiddlewares(authenticator.RequireAuth, authenticator.RequireAdmin),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); oidc != nil {
		opts = append(opts,
			handlers.WithInternalMiddlewares(oidc),
			handlers.WithInternalRoutes(internalHandlers.Routes),
		)
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

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("persistence", cfg.Persistence.Driver))
	go func() {
		serverLogger.Info("gift shop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

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

func buildInfoFromEnv(env map[string]string, cfg config.Config) services.BuildInfo {
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
	}
}

// profileAdminResolver treats the stored profile role as authoritative. A missing profile is a
// regular customer who has not registered yet.
func profileAdminResolver(users services.UserService) auth.AdminResolver {
	return func(ctx context.Context, identity *auth.Identity) (bool, error) {
		if users == nil || identity == nil {
			return false, nil
		}
		profile, err := users.GetProfile(ctx, identity.UID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return false, nil
			}
			return false, err
		}
		return profile.IsAdmin(), nil
	}
}

func firestoreHealthCheck(client *firestore.Client) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			iter := client.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	}
}

func secretManagerHealthCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system-healthz"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil || errors.Is(err, secrets.ErrSecretNotFound) {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	oidcCfg := cfg.Security.OIDC
	if strings.TrimSpace(oidcCfg.JWKSURL) == "" {
		logger.Warn("auth: OIDC JWKS url not configured; internal routes are not mounted")
		return nil
	}

	cache := auth.NewJWKSCache(oidcCfg.JWKSURL, auth.WithJWKSLogger(logger))
	verifier, err := auth.NewOIDCVerifier(cache, oidcCfg.Audience,
		auth.WithOIDCIssuers(oidcCfg.Issuers...),
		auth.WithOIDCServiceAccounts(oidcCfg.ServiceAccounts...),
		auth.WithOIDCLogger(logger),
	)
	if err != nil {
		logger.Warn("auth: OIDC verifier unavailable; internal routes are not mounted", zap.Error(err))
		return nil
	}
	return verifier.RequireOIDC
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
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
	if ttl := lookup("API_SECRET_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			opts = append(opts, secrets.WithCacheTTL(d))
		}
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve before the server starts. Local runs
// may omit Stripe and fall back to cash-on-delivery and bank transfer only.
func requiredSecretNames(env map[string]string) []string {
	environment := "local"
	if env != nil {
		if value := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"])); value != "" {
			environment = value
		}
	}
	if environment == "local" || environment == "test" {
		return nil
	}
	required := []string{
		"Payments.StripeAPIKey",
		"Payments.StripeWebhookSecret",
	}
	if env != nil {
		required = append(required, strings.Split(env["API_REQUIRED_SECRETS"], ",")...)
	}
	return uniqueStrings(required)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
