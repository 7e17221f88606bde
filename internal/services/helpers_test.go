package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/memory"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func newTestStore(t *testing.T, products ...domain.Product) *memory.Store {
	t.Helper()
	store := memory.NewStore(memory.WithClock(fixedClock))
	for _, product := range products {
		if product.CreatedAt.IsZero() {
			product.CreatedAt = testNow
		}
		if err := store.Products().Insert(context.Background(), product); err != nil {
			t.Fatalf("seed product %s: %v", product.ID, err)
		}
	}
	return store
}

func stockOf(t *testing.T, store *memory.Store, productID string) int {
	t.Helper()
	product, err := store.Products().FindByID(context.Background(), productID)
	if err != nil {
		t.Fatalf("find product %s: %v", productID, err)
	}
	return product.Stock
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

// fakeGateway implements both checkoutSessionCreator and paymentSessionReader.
type fakeGateway struct {
	mu          sync.Mutex
	createFunc  func(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	requests    []payments.CheckoutSessionRequest
	sessions    map[string]payments.CheckoutSession
	retrieveErr error
	event       payments.WebhookEvent
	webhookErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]payments.CheckoutSession)}
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.createFunc != nil {
		return g.createFunc(ctx, req)
	}
	return payments.CheckoutSession{
		ID:            "cs_test_" + req.Metadata["orderId"],
		RedirectURL:   "https://checkout.stripe.test/" + req.Metadata["orderId"],
		Status:        payments.SessionStatusOpen,
		PaymentStatus: payments.SessionPaymentUnpaid,
		Metadata:      req.Metadata,
	}, nil
}

func (g *fakeGateway) RetrieveCheckoutSession(_ context.Context, sessionID string) (payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrieveErr != nil {
		return payments.CheckoutSession{}, g.retrieveErr
	}
	session, ok := g.sessions[sessionID]
	if !ok {
		return payments.CheckoutSession{}, payments.ErrSessionNotFound
	}
	return session, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if g.webhookErr != nil {
		return payments.WebhookEvent{}, g.webhookErr
	}
	return g.event, nil
}

func (g *fakeGateway) setSession(session payments.CheckoutSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[session.ID] = session
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-" + event.OrderID, nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type stubUploader struct {
	uploadFunc func(ctx context.Context, object UploadObject) (string, error)
	objects    []UploadObject
}

func (u *stubUploader) Upload(ctx context.Context, object UploadObject) (string, error) {
	if object.Body != nil {
		if _, err := io.Copy(io.Discard, object.Body); err != nil {
			return "", err
		}
	}
	u.objects = append(u.objects, object)
	if u.uploadFunc != nil {
		return u.uploadFunc(ctx, object)
	}
	return "https://storage.test/" + object.Kind + "/" + object.OwnerID + "/" + object.FileName, nil
}

type loggedEvent struct {
	name   string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, loggedEvent{name: event, fields: fields})
}

func (r *eventRecorder) find(name string) (loggedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.name == name {
			return event, true
		}
	}
	return loggedEvent{}, false
}

var errBoom = errors.New("boom")
