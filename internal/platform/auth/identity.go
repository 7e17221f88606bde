// Package auth verifies Firebase ID tokens for shoppers and admins, and Google-signed OIDC
// tokens for scheduler callbacks.
package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles recognised in the role custom claim and on stored profiles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrUserLoaderUnavailable is returned by Identity.User when the Authenticator has no UserGetter.
var ErrUserLoaderUnavailable = errors.New("auth: user loader not configured")

// UserLoader fetches the Firebase user record for a UID.
type UserLoader func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)

// Identity is the authenticated shopper or admin behind a request.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Phone         string
	Name          string
	Picture       string
	Roles         []string

	token  *firebaseauth.Token
	record *lazyRecord
}

type lazyRecord struct {
	load UserLoader
	once sync.Once
	user *firebaseauth.UserRecord
	err  error
}

// Token is the decoded ID token, nil for identities built outside the middleware.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.ContainsFunc(i.Roles, func(r string) bool { return normaliseRole(r) == role })
}

// IsAdmin reports only what the token or a previous AdminResolver lookup granted.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// DisplayName is the token name, or the local part of the email when the token has none.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(i.Email, "@")
	return strings.TrimSpace(local)
}

// User loads the Firebase user record once per request.
func (i *Identity) User(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil || i.record == nil || i.record.load == nil {
		return nil, ErrUserLoaderUnavailable
	}
	r := i.record
	r.once.Do(func() { r.user, r.err = r.load(ctx, i.UID) })
	return r.user, r.err
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
