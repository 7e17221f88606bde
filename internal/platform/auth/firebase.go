package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/config"
)

// FirebaseVerifier is the Admin SDK backed TokenVerifier and UserGetter. Timeouts are applied
// by the Authenticator.
type FirebaseVerifier struct {
	client       *firebaseauth.Client
	checkRevoked bool
}

// NewFirebaseVerifier initialises a Firebase app for cfg.ProjectID. The SDK honours
// FIREBASE_AUTH_EMULATOR_HOST on its own, so local runs need no extra wiring.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client, checkRevoked: cfg.CheckRevoked}, nil
}

// VerifyIDToken checks the token signature and claims. Revoked sessions surface as
// ErrTokenInvalid when revocation checks are on.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}
	if !v.checkRevoked {
		return v.client.VerifyIDToken(ctx, idToken)
	}
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if firebaseauth.IsIDTokenRevoked(err) || firebaseauth.IsUserDisabled(err) {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return token, err
}

func (v *FirebaseVerifier) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}
	return v.client.GetUser(ctx, uid)
}
