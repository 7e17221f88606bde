package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// UserGetter retrieves Firebase user information.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// AdminResolver reports whether the identity is an administrator according to stored state,
// e.g. the role on the shop profile. It is consulted only when the token carries no admin claim.
type AdminResolver func(ctx context.Context, identity *Identity) (bool, error)

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	users    UserGetter
	admins   AdminResolver

	roleClaim string
	timeout   time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithUserGetter enables lazy user record loading via Firebase Admin APIs.
func WithUserGetter(getter UserGetter) Option {
	return func(a *Authenticator) {
		a.users = getter
	}
}

// WithAdminResolver sets the fallback lookup used by RequireAdmin.
func WithAdminResolver(resolver AdminResolver) Option {
	return func(a *Authenticator) {
		a.admins = resolver
	}
}

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens and loading users.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the Authorization bearer token and stores the Identity on the context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin must run after RequireAuth. Callers are admins when the token carries the admin
// role or, failing that, when the AdminResolver says so.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := IdentityFromContext(ctx)
		if !ok {
			respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		admin, err := a.IsAdmin(ctx, identity)
		if err != nil {
			respondAuthError(ctx, w, http.StatusServiceUnavailable, "role_lookup_failed", "unable to resolve caller role")
			return
		}
		if !admin {
			respondAuthError(ctx, w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsAdmin reports whether identity is an administrator, consulting the AdminResolver when the
// token carries no admin role. A positive lookup is cached on the identity.
func (a *Authenticator) IsAdmin(ctx context.Context, identity *Identity) (bool, error) {
	if identity == nil {
		return false, nil
	}
	if identity.IsAdmin() {
		return true, nil
	}
	if a == nil || a.admins == nil {
		return false, nil
	}
	admin, err := a.admins(ctx, identity)
	if err != nil {
		return false, err
	}
	if admin {
		identity.Roles = append(identity.Roles, RoleAdmin)
	}
	return admin, nil
}

// Verify checks a raw ID token outside the middleware chain, e.g. a token posted in a login body.
func (a *Authenticator) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if a == nil || a.verifier == nil {
		return nil, errors.New("auth: verifier not configured")
	}
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrTokenInvalid
	}
	vctx, cancel := a.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}
	token, err := a.verifier.VerifyIDToken(vctx, idToken)
	if err != nil {
		return nil, classifyVerificationError(err)
	}
	return a.identityFromToken(token), nil
}

func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	ctx := r.Context()
	tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
	if !ok {
		respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
		return nil, false
	}
	identity, err := a.Verify(ctx, tokenStr)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
		case errors.Is(err, ErrTokenInvalid):
			respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
		default:
			respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "firebase id token verification failed")
		}
		return nil, false
	}
	return identity, true
}

func (a *Authenticator) identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:     token.UID,
		Email:   claimAsString(token.Claims, "email"),
		Phone:   claimAsString(token.Claims, "phone_number"),
		Name:    claimAsString(token.Claims, "name"),
		Picture: claimAsString(token.Claims, "picture"),
		Roles:   rolesFromClaims(token.Claims, a.roleClaim),
		token:   token,
	}
	identity.EmailVerified, _ = token.Claims["email_verified"].(bool)
	if len(identity.Roles) == 0 {
		identity.Roles = []string{RoleUser}
	}
	if a.users != nil {
		identity.record = &lazyRecord{load: func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
			ctx, cancel := a.contextWithTimeout(ctx)
			if cancel != nil {
				defer cancel()
			}
			return a.users.GetUser(ctx, uid)
		}}
	}
	return identity
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func classifyVerificationError(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return ErrTokenExpired
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return ErrTokenInvalid
	default:
		return err
	}
}

// rolesFromClaims accepts a single role string, a list of roles, or a map of role to bool.
func rolesFromClaims(claims map[string]any, key string) []string {
	var candidates []string
	switch v := claims[key].(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				candidates = append(candidates, role)
			}
		}
	}
	// Firebase projects commonly set {"admin": true} instead of a role string.
	if admin, ok := claims[RoleAdmin].(bool); ok && admin {
		candidates = append(candidates, RoleAdmin)
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := normaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
