package payments

import (
	"context"
	"errors"
	"time"
)

// SessionPaymentStatus mirrors the PSP's view of whether a checkout session collected funds.
type SessionPaymentStatus string

const (
	SessionPaymentPaid              SessionPaymentStatus = "paid"
	SessionPaymentUnpaid            SessionPaymentStatus = "unpaid"
	SessionPaymentNoPaymentRequired SessionPaymentStatus = "no_payment_required"
)

// SessionStatus is the lifecycle state of a hosted checkout session.
type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusExpired  SessionStatus = "expired"
)

// Webhook event types handled by the reconciler.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventCheckoutSessionExpired   = "checkout.session.expired"
)

var (
	// ErrSessionNotFound indicates the PSP has no session with the requested id.
	ErrSessionNotFound = errors.New("payments: session not found")
	// ErrInvalidSignature indicates a webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
)

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name     string
	Quantity int64
	Amount   int64
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
// Amounts are minor units of Currency.
type CheckoutSessionRequest struct {
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession represents the PSP session as seen by the shop.
type CheckoutSession struct {
	ID            string
	RedirectURL   string
	Status        SessionStatus
	PaymentStatus SessionPaymentStatus
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
	ExpiresAt     time.Time
}

// WebhookEvent is a verified PSP notification about a checkout session.
type WebhookEvent struct {
	ID      string
	Type    string
	Session CheckoutSession
}

// Provider defines the contract PSP adapters implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
