package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	// ErrOIDCTokenMissing indicates the request carried no bearer token.
	ErrOIDCTokenMissing = errors.New("auth: oidc token missing")
	// ErrOIDCTokenInvalid covers signature, expiry, audience, issuer and caller mismatches.
	ErrOIDCTokenInvalid = errors.New("auth: oidc token invalid")
)

// ServiceIdentity is the Google service account that invoked an internal route.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by the middleware.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// OIDCVerifier checks Google-signed ID tokens sent by Cloud Scheduler or Cloud Tasks.
type OIDCVerifier struct {
	keys     *JWKSCache
	audience string
	issuers  []string
	accounts []string
	logger   *zap.Logger
	checks   metric.Int64Counter
}

// OIDCOption customises the verifier.
type OIDCOption func(*OIDCVerifier)

// WithOIDCIssuers restricts accepted issuers. Defaults to accounts.google.com.
func WithOIDCIssuers(issuers ...string) OIDCOption {
	return func(v *OIDCVerifier) {
		cleaned := make([]string, 0, len(issuers))
		for _, issuer := range issuers {
			if issuer = strings.TrimSpace(issuer); issuer != "" {
				cleaned = append(cleaned, issuer)
			}
		}
		if len(cleaned) > 0 {
			v.issuers = cleaned
		}
	}
}

// WithOIDCServiceAccounts only admits tokens whose verified email is one of accounts.
func WithOIDCServiceAccounts(accounts ...string) OIDCOption {
	return func(v *OIDCVerifier) {
		for _, account := range accounts {
			if account = strings.ToLower(strings.TrimSpace(account)); account != "" {
				v.accounts = append(v.accounts, account)
			}
		}
	}
}

// WithOIDCLogger sets the logger for rejected tokens.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMeter records verification outcomes on the given meter.
func WithOIDCMeter(meter metric.Meter) OIDCOption {
	return func(v *OIDCVerifier) {
		if meter == nil {
			return
		}
		if counter, err := meter.Int64Counter("auth.oidc.verifications",
			metric.WithDescription("OIDC token verifications by outcome")); err == nil {
			v.checks = counter
		}
	}
}

// NewOIDCVerifier constructs a verifier expecting tokens minted for audience.
func NewOIDCVerifier(keys *JWKSCache, audience string, opts ...OIDCOption) (*OIDCVerifier, error) {
	if keys == nil {
		return nil, errors.New("auth: jwks cache is required")
	}
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return nil, errors.New("auth: oidc audience is required")
	}
	v := &OIDCVerifier{
		keys:     keys,
		audience: audience,
		issuers:  []string{"https://accounts.google.com", "accounts.google.com"},
		logger:   zap.NewNop(),
	}
	WithOIDCMeter(otel.Meter("github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"))(v)
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses and validates a raw token.
func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*ServiceIdentity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrOIDCTokenMissing
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOIDCTokenInvalid, err)
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrOIDCTokenInvalid)
	}
	issuer, _ := claims["iss"].(string)
	if !slices.Contains(v.issuers, issuer) {
		return nil, fmt.Errorf("%w: issuer %q not accepted", ErrOIDCTokenInvalid, issuer)
	}

	email, _ := claims["email"].(string)
	if len(v.accounts) > 0 {
		verified, _ := claims["email_verified"].(bool)
		if !verified || !slices.Contains(v.accounts, strings.ToLower(email)) {
			return nil, fmt.Errorf("%w: caller %q not allowed", ErrOIDCTokenInvalid, email)
		}
	}
	subject, _ := claims["sub"].(string)
	return &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer}, nil
}

// RequireOIDC rejects requests without a valid Google-signed bearer token.
func (v *OIDCVerifier) RequireOIDC(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, _ := extractBearerToken(r.Header.Get("Authorization"))
		identity, err := v.Verify(ctx, token)
		if err != nil {
			outcome := "invalid"
			status := http.StatusUnauthorized
			code := "invalid_token"
			switch {
			case errors.Is(err, ErrOIDCTokenMissing):
				outcome, code = "missing", "unauthenticated"
			case errors.Is(err, ErrJWKSFetchFailed):
				outcome, code = "keys_unavailable", "verification_unavailable"
				status = http.StatusServiceUnavailable
			}
			v.record(ctx, outcome)
			v.logger.Warn("oidc token rejected", zap.String("outcome", outcome), zap.Error(err))
			respondAuthError(ctx, w, status, code, "oidc token verification failed")
			return
		}
		v.record(ctx, "ok")
		next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
	})
}

func (v *OIDCVerifier) record(ctx context.Context, outcome string) {
	if v.checks == nil {
		return
	}
	v.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
