// Package config loads the API configuration from the environment, an optional .env file and
// Secret Manager references.
package config

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 25 * time.Second
	defaultMaxUploadBytes       = 5 << 20
	defaultPersistenceDriver    = PersistenceFirestore
	defaultPaymentCurrency      = "usd"
	defaultConversionRate       = "300"
	defaultReconcileAfter       = 30 * time.Minute
	defaultReconcileBatchSize   = 50
	defaultOrderEventsTopic     = "order-events"
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Persistence drivers accepted by API_PERSISTENCE_DRIVER.
const (
	PersistenceFirestore = "firestore"
	PersistenceMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Persistence PersistenceConfig
	Storage     StorageConfig
	Payments    PaymentConfig
	Events      EventConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked makes every token verification also consult Firebase for revoked sessions.
	CheckRevoked bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PersistenceConfig selects the repository backend. The memory driver is meant for local runs.
type PersistenceConfig struct {
	Driver string
}

// StorageConfig configures where uploaded payment slips and product images are written.
type StorageConfig struct {
	UploadsBucket string
	PublicBaseURL string
}

// PaymentConfig carries the Stripe credentials and the hosted checkout parameters.
type PaymentConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	Currency            string
	// ConversionRate is the number of shop currency units per settlement currency unit.
	ConversionRate     string
	FrontendURL        string
	ReconcileAfter     time.Duration
	ReconcileBatchSize int
}

// EventConfig configures order lifecycle publishing. An empty topic disables publishing.
type EventConfig struct {
	ProjectID   string
	OrdersTopic string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for scheduler callbacks.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
	// ServiceAccounts lists the invoker emails allowed to call internal routes. Empty admits any.
	ServiceAccounts []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError lists the config fields and environment keys that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// Load builds the Config. Precedence is WithEnvMap, then the process environment, then the env
// file, then defaults. Secret references are resolved last.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := newLoaderOptions(opts)
	e, err := openEnv(o)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: serverConfig(e),
		Firebase: FirebaseConfig{
			ProjectID:       e.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: e.str("API_FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    e.bool("API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    e.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: e.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Persistence: PersistenceConfig{Driver: e.lower("API_PERSISTENCE_DRIVER", defaultPersistenceDriver)},
		Storage: StorageConfig{
			UploadsBucket: e.str("API_STORAGE_UPLOADS_BUCKET", ""),
			PublicBaseURL: e.str("API_STORAGE_PUBLIC_BASE_URL", ""),
		},
		Payments: paymentConfig(e),
		Events: EventConfig{
			ProjectID:   e.str("API_EVENTS_PROJECT_ID", ""),
			OrdersTopic: e.str("API_EVENTS_ORDERS_TOPIC", defaultOrderEventsTopic),
		},
		Security: securityConfig(e),
		Idempotency: IdempotencyConfig{
			Header:           e.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              e.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  e.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: e.int("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}
	cfg.Firestore.ProjectID = cmp.Or(cfg.Firestore.ProjectID, cfg.Firebase.ProjectID)
	cfg.Events.ProjectID = cmp.Or(cfg.Events.ProjectID, cfg.Firestore.ProjectID)

	resolved, err := resolveSecrets(ctx, o.secret, []secretField{
		{name: "Payments.StripeAPIKey", value: &cfg.Payments.StripeAPIKey},
		{name: "Payments.StripeWebhookSecret", value: &cfg.Payments.StripeWebhookSecret},
	})
	if err != nil {
		return Config{}, err
	}

	if fields := append(validate(cfg), e.invalid...); len(fields) > 0 {
		return Config{}, &ValidationError{fields: fields}
	}

	if missing := missingSecrets(o.requiredSecrets, resolved); missing != nil {
		if o.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func serverConfig(e *env) ServerConfig {
	return ServerConfig{
		Port:           e.str("API_SERVER_PORT", defaultPort),
		ReadTimeout:    e.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:   e.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
		IdleTimeout:    e.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		RequestTimeout: e.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		MaxUploadBytes: int64(e.int("API_SERVER_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		AllowedOrigins: e.list("API_SERVER_ALLOWED_ORIGINS"),
	}
}

func paymentConfig(e *env) PaymentConfig {
	return PaymentConfig{
		StripeAPIKey:        e.str("API_PAYMENT_STRIPE_API_KEY", ""),
		StripeWebhookSecret: e.str("API_PAYMENT_STRIPE_WEBHOOK_SECRET", ""),
		Currency:            e.lower("API_PAYMENT_CURRENCY", defaultPaymentCurrency),
		ConversionRate:      e.str("API_PAYMENT_CONVERSION_RATE", defaultConversionRate),
		FrontendURL:         strings.TrimRight(e.str("API_PAYMENT_FRONTEND_URL", "http://localhost:5173"), "/"),
		ReconcileAfter:      e.duration("API_PAYMENT_RECONCILE_AFTER", defaultReconcileAfter),
		ReconcileBatchSize:  e.int("API_PAYMENT_RECONCILE_BATCH", defaultReconcileBatchSize),
	}
}

// securityConfig picks the OIDC audience for the current environment from
// API_SECURITY_OIDC_AUDIENCES unless API_SECURITY_OIDC_AUDIENCE pins one.
func securityConfig(e *env) SecurityConfig {
	sec := SecurityConfig{
		Environment: e.lower("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment),
		OIDC: OIDCConfig{
			JWKSURL:         e.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
			Audience:        e.str("API_SECURITY_OIDC_AUDIENCE", ""),
			Audiences:       e.pairs("API_SECURITY_OIDC_AUDIENCES"),
			Issuers:         e.list("API_SECURITY_OIDC_ISSUERS"),
			ServiceAccounts: e.list("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
		},
	}
	if len(sec.OIDC.Issuers) == 0 {
		sec.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if sec.OIDC.Audience == "" {
		sec.OIDC.Audience = sec.OIDC.Audiences[sec.Environment]
	}
	return sec
}

func validate(cfg Config) []string {
	var bad []string
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Server.MaxUploadBytes > 0, "Server.MaxUploadBytes")
	switch cfg.Persistence.Driver {
	case PersistenceFirestore:
		check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	case PersistenceMemory:
	default:
		check(false, "Persistence.Driver")
	}
	check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	rate, err := strconv.ParseFloat(cfg.Payments.ConversionRate, 64)
	check(err == nil && rate > 0, "Payments.ConversionRate")
	check(cfg.Payments.Currency != "", "Payments.Currency")
	check(cfg.Payments.ReconcileBatchSize > 0, "Payments.ReconcileBatchSize")
	check(cfg.Idempotency.Header != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	return bad
}
