package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// Middleware is the shape accepted by chi's Use.
type Middleware = func(http.Handler) http.Handler

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// mountOrder lists every group under the API prefix. Groups without registrars answer 501.
var mountOrder = []string{
	"auth", "products", "categories", "reviews", "cart", "wishlist",
	"orders", "settings", "admin", "webhooks", "internal",
}

type routeGroup struct {
	registrars  []RouteRegistrar
	middlewares []Middleware
}

type routerConfig struct {
	basePath    string
	timeout     time.Duration
	middlewares []Middleware
	health      *HealthHandlers
	groups      map[string]*routeGroup
}

func (cfg *routerConfig) group(name string) *routeGroup {
	g, ok := cfg.groups[name]
	if !ok {
		g = &routeGroup{}
		cfg.groups[name] = g
	}
	return g
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface: probes at the root, feature groups under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{
		basePath: defaultAPIPrefix,
		timeout:  defaultTimeout,
		groups:   make(map[string]*routeGroup, len(mountOrder)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	use(r, middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	use(r, cfg.middlewares...)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range mountOrder {
			g := cfg.group(name)
			api.Route("/"+name, func(sub chi.Router) {
				use(sub, g.middlewares...)
				if len(g.registrars) == 0 {
					notImplemented(sub, name)
					return
				}
				for _, register := range g.registrars {
					if register != nil {
						register(sub)
					}
				}
			})
		}
	})

	return r
}

func use(r chi.Router, mws ...Middleware) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

func notImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes are not available", http.StatusNotImplemented))
	}
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
}

// WithMiddlewares appends global middleware, run after request id, real ip and timeout.
func WithMiddlewares(mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithRequestTimeout bounds how long a request may run before its context is cancelled.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func withRoutes(name string, reg []RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(name)
		g.registrars = append(g.registrars, reg...)
	}
}

func withGroupMiddlewares(name string, mw []Middleware) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(name)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// Registrars for each mounted group. Several registrars may share a group.
func WithAuthRoutes(reg ...RouteRegistrar) Option     { return withRoutes("auth", reg) }
func WithProductRoutes(reg ...RouteRegistrar) Option  { return withRoutes("products", reg) }
func WithCategoryRoutes(reg ...RouteRegistrar) Option { return withRoutes("categories", reg) }
func WithReviewRoutes(reg ...RouteRegistrar) Option   { return withRoutes("reviews", reg) }
func WithCartRoutes(reg ...RouteRegistrar) Option     { return withRoutes("cart", reg) }
func WithWishlistRoutes(reg ...RouteRegistrar) Option { return withRoutes("wishlist", reg) }
func WithOrderRoutes(reg ...RouteRegistrar) Option    { return withRoutes("orders", reg) }
func WithSettingsRoutes(reg ...RouteRegistrar) Option { return withRoutes("settings", reg) }
func WithAdminRoutes(reg ...RouteRegistrar) Option    { return withRoutes("admin", reg) }
func WithWebhookRoutes(reg ...RouteRegistrar) Option  { return withRoutes("webhooks", reg) }
func WithInternalRoutes(reg ...RouteRegistrar) Option { return withRoutes("internal", reg) }

// Group-scoped middleware, applied before the group's registrars.
func WithAdminMiddlewares(mw ...Middleware) Option    { return withGroupMiddlewares("admin", mw) }
func WithWebhookMiddlewares(mw ...Middleware) Option  { return withGroupMiddlewares("webhooks", mw) }
func WithInternalMiddlewares(mw ...Middleware) Option { return withGroupMiddlewares("internal", mw) }
