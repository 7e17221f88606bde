package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const (
	maxAuthBodySize    = 16 * 1024
	defaultMaxBodySize = 64 * 1024
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// AuthHandlers links Firebase identities to shop profiles.
type AuthHandlers struct {
	authn   *auth.Authenticator
	users   services.UserService
	limiter *fixedWindowLimiter
}

// AuthOption customises AuthHandlers.
type AuthOption func(*AuthHandlers)

// WithSignInRateLimit caps register and login attempts per client IP.
func WithSignInRateLimit(limit int, window time.Duration, clock func() time.Time) AuthOption {
	return func(h *AuthHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, clock)
	}
}

// NewAuthHandlers constructs handlers that verify Firebase ID tokens before invoking the user service.
func NewAuthHandlers(authn *auth.Authenticator, users services.UserService, opts ...AuthOption) *AuthHandlers {
	h := &AuthHandlers{
		authn: authn,
		users: users,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	signIn := r.With(limitByClientIP(h.limiter))
	signIn.Post("/register", h.register)
	signIn.Post("/login", h.login)

	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth)
	}
	group.Get("/me", h.me)
}

type authRequest struct {
	IDToken string `json:"idToken"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	h.signIn(w, r, http.StatusCreated, func(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
		return h.users.Register(ctx, cmd)
	})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	h.signIn(w, r, http.StatusOK, func(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
		return h.users.Login(ctx, cmd)
	})
}

func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request, status int, call func(context.Context, services.RegisterUserCommand) (services.User, error)) {
	ctx := r.Context()
	if h.users == nil || h.authn == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "authentication service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req authRequest
	body, err := readLimitedBody(r, maxAuthBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
	default:
		writeBodyError(ctx, w, err)
		return
	}

	token := strings.TrimSpace(req.IDToken)
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "idToken is required", http.StatusBadRequest))
		return
	}

	identity, err := h.authn.Verify(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			httpx.WriteError(ctx, w, httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized))
		}
		return
	}

	cmd := services.RegisterUserCommand{
		UID:      identity.UID,
		Email:    identity.Email,
		Name:     firstNonEmpty(req.Name, identity.Name),
		Phone:    firstNonEmpty(req.Phone, identity.Phone),
		PhotoURL: identity.Picture,
	}
	user, err := call(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, userResponse{User: buildUserPayload(user)})
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "authentication service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// viewerFor resolves the caller's admin status, falling back to a non-admin viewer when the
// role lookup fails.
func viewerFor(ctx context.Context, authn *auth.Authenticator, identity *auth.Identity) services.Viewer {
	viewer := services.Viewer{UserID: strings.TrimSpace(identity.UID), IsAdmin: identity.IsAdmin()}
	if !viewer.IsAdmin && authn != nil {
		if admin, err := authn.IsAdmin(ctx, identity); err == nil {
			viewer.IsAdmin = admin
		}
	}
	return viewer
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
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

// decodeJSONBody reads at most limit bytes and unmarshals them into dst, writing the error
// response itself when it returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
