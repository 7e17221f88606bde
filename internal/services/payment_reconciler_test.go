package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/memory"
)

type reconcilerFixture struct {
	store     *memory.Store
	gateway   *fakeGateway
	publisher *recordingPublisher
	logs      *eventRecorder
	service   PaymentReconciler
}

func newReconcilerFixture(t *testing.T, products ...domain.Product) reconcilerFixture {
	t.Helper()
	store := newTestStore(t, products...)
	gateway := newFakeGateway()
	publisher := &recordingPublisher{}
	logs := &eventRecorder{}
	svc, err := NewPaymentReconciler(PaymentReconcilerDeps{
		Orders:   store.Orders(),
		Payments: gateway,
		Events:   publisher,
		Clock:    fixedClock,
		Logger:   logs.log,
	})
	require.NoError(t, err)
	return reconcilerFixture{store: store, gateway: gateway, publisher: publisher, logs: logs, service: svc}
}

// seedCardOrder stores an unfinalized card order for two mugs bound to session "cs_<id>".
func (f reconcilerFixture) seedCardOrder(t *testing.T, orderID, userID string, createdAt time.Time) domain.Order {
	t.Helper()
	ctx := context.Background()
	order := domain.Order{
		ID:               orderID,
		UserID:           userID,
		Items:            []domain.OrderItem{{ProductID: "mug", Name: "Painted Mug", Quantity: 2, Price: 1000}},
		ShippingAddress:  testAddress,
		PaymentMethod:    domain.PaymentMethodCard,
		PaymentStatus:    domain.PaymentStatusPending,
		OrderStatus:      domain.OrderStatusPending,
		Subtotal:         2000,
		ShippingFee:      200,
		TotalAmount:      2200,
		PaymentSessionID: "cs_" + orderID,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	require.NoError(t, f.store.Orders().Insert(ctx, order))
	_, err := f.store.Carts().Mutate(ctx, userID, func(cart *domain.Cart) error {
		cart.Items = append(cart.Items, domain.CartItem{ID: "ci-" + orderID, ProductID: "mug", Quantity: 2})
		return nil
	})
	require.NoError(t, err)
	return order
}

func paidSession(orderID string) payments.CheckoutSession {
	return payments.CheckoutSession{
		ID:            "cs_" + orderID,
		Status:        payments.SessionStatusComplete,
		PaymentStatus: payments.SessionPaymentPaid,
		Metadata:      map[string]string{"orderId": orderID, "userId": "buyer-1"},
	}
}

func TestPaymentReconcilerVerifyFinalizesExactlyOnce(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow.Add(-time.Minute))
	f.gateway.setSession(paidSession("order-1"))
	ctx := context.Background()
	cmd := VerifyPaymentCommand{SessionID: "cs_order-1", Viewer: Viewer{UserID: "buyer-1"}}

	first, err := f.service.VerifyAndFinalize(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, first.Finalized)
	assert.Equal(t, "paid", first.PaymentStatus)
	assert.Equal(t, domain.PaymentStatusPaid, first.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusProcessing, first.Order.OrderStatus)
	assert.True(t, first.Order.Finalized)
	assert.Equal(t, 3, stockOf(t, f.store, "mug"))

	cart, err := f.store.Carts().Get(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	second, err := f.service.VerifyAndFinalize(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, second.Finalized)
	assert.True(t, second.Order.Finalized)
	assert.Equal(t, 3, stockOf(t, f.store, "mug"))
	assert.Equal(t, []string{OrderEventFinalized}, f.publisher.types())
}

func TestPaymentReconcilerVerifyUnpaidLeavesOrderPending(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow)
	session := paidSession("order-1")
	session.Status = payments.SessionStatusOpen
	session.PaymentStatus = payments.SessionPaymentUnpaid
	f.gateway.setSession(session)

	result, err := f.service.VerifyAndFinalize(context.Background(), VerifyPaymentCommand{SessionID: "cs_order-1", Viewer: Viewer{UserID: "buyer-1"}})
	require.NoError(t, err)
	assert.False(t, result.Finalized)
	assert.Equal(t, "unpaid", result.PaymentStatus)
	assert.Equal(t, domain.PaymentStatusPending, result.Order.PaymentStatus)
	assert.Equal(t, 5, stockOf(t, f.store, "mug"))
}

func TestPaymentReconcilerVerifyRejectsForeignViewer(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow)
	f.gateway.setSession(paidSession("order-1"))

	_, err := f.service.VerifyAndFinalize(context.Background(), VerifyPaymentCommand{SessionID: "cs_order-1", Viewer: Viewer{UserID: "intruder"}})
	require.ErrorIs(t, err, ErrOrderForbidden)
	assert.Equal(t, 5, stockOf(t, f.store, "mug"))

	result, err := f.service.VerifyAndFinalize(context.Background(), VerifyPaymentCommand{SessionID: "cs_order-1", Viewer: Viewer{UserID: "staff", IsAdmin: true}})
	require.NoError(t, err)
	assert.True(t, result.Finalized)
}

func TestPaymentReconcilerVerifyRejectsUnknownOrMismatchedSessions(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow)
	ctx := context.Background()

	_, err := f.service.VerifyAndFinalize(ctx, VerifyPaymentCommand{SessionID: "cs_missing"})
	require.ErrorIs(t, err, ErrPaymentInvalidSession)

	foreign := paidSession("order-1")
	foreign.ID = "cs_other"
	f.gateway.setSession(foreign)
	_, err = f.service.VerifyAndFinalize(ctx, VerifyPaymentCommand{SessionID: "cs_other"})
	require.ErrorIs(t, err, ErrPaymentInvalidSession)

	orphan := paidSession("order-404")
	f.gateway.setSession(orphan)
	_, err = f.service.VerifyAndFinalize(ctx, VerifyPaymentCommand{SessionID: orphan.ID})
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.service.VerifyAndFinalize(ctx, VerifyPaymentCommand{})
	require.ErrorIs(t, err, ErrPaymentInvalidInput)

	f.gateway.retrieveErr = errBoom
	_, err = f.service.VerifyAndFinalize(ctx, VerifyPaymentCommand{SessionID: "cs_order-1"})
	require.ErrorIs(t, err, ErrPaymentGatewayFailure)

	assert.Equal(t, 5, stockOf(t, f.store, "mug"))
}

func TestPaymentReconcilerPaidButOutOfStockIsFlagged(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow)
	f.gateway.setSession(paidSession("order-1"))
	_, err := f.store.Products().AdjustStock(context.Background(), "mug", -4)
	require.NoError(t, err)

	_, err = f.service.VerifyAndFinalize(context.Background(), VerifyPaymentCommand{SessionID: "cs_order-1", Viewer: Viewer{UserID: "buyer-1"}})
	require.ErrorIs(t, err, ErrInsufficientStock)

	event, ok := f.logs.find("order.reconcile.stock_shortfall")
	require.True(t, ok)
	assert.Equal(t, "ERROR", event.fields["severity"])
	assert.Equal(t, "order-1", event.fields["orderId"])

	order, err := f.store.Orders().FindByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, order.Finalized)
	assert.Equal(t, 1, stockOf(t, f.store, "mug"))
}

func TestPaymentReconcilerWebhookFinalizesCompletedSessions(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow)
	f.gateway.event = payments.WebhookEvent{ID: "evt_1", Type: payments.EventCheckoutSessionCompleted, Session: paidSession("order-1")}

	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "sig"))

	order, err := f.store.Orders().FindByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, order.Finalized)
	assert.Equal(t, 3, stockOf(t, f.store, "mug"))
}

func TestPaymentReconcilerWebhookEdgeCases(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	ctx := context.Background()

	f.gateway.webhookErr = fmt.Errorf("%w: bad header", payments.ErrInvalidSignature)
	require.ErrorIs(t, f.service.HandleWebhook(ctx, []byte(`{}`), "bad"), ErrPaymentInvalidSignature)

	f.gateway.webhookErr = nil
	f.gateway.event = payments.WebhookEvent{ID: "evt_2", Type: "customer.created"}
	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "sig"))
	_, ok := f.logs.find("payment.webhook.ignored")
	assert.True(t, ok)

	f.gateway.event = payments.WebhookEvent{ID: "evt_3", Type: payments.EventCheckoutSessionCompleted, Session: paidSession("order-unknown")}
	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "sig"))
	_, ok = f.logs.find("payment.webhook.uncorrelated")
	assert.True(t, ok)
}

func TestPaymentReconcilerSweepsStalePendingOrders(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	old := testNow.Add(-2 * time.Hour)
	f.seedCardOrder(t, "order-paid", "buyer-1", old)
	f.seedCardOrder(t, "order-expired", "buyer-2", old.Add(time.Minute))
	f.seedCardOrder(t, "order-open", "buyer-3", old.Add(2*time.Minute))
	f.seedCardOrder(t, "order-fresh", "buyer-4", testNow.Add(-time.Minute))

	f.gateway.setSession(paidSession("order-paid"))
	expired := paidSession("order-expired")
	expired.Status = payments.SessionStatusExpired
	expired.PaymentStatus = payments.SessionPaymentUnpaid
	f.gateway.setSession(expired)
	open := paidSession("order-open")
	open.Status = payments.SessionStatusOpen
	open.PaymentStatus = payments.SessionPaymentUnpaid
	f.gateway.setSession(open)

	summary, err := f.service.ReconcilePending(context.Background(), ReconcilePendingCommand{})
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 3, Finalized: 1, Failed: 1}, summary)

	expiredOrder, err := f.store.Orders().FindByID(context.Background(), "order-expired")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, expiredOrder.PaymentStatus)
	assert.False(t, expiredOrder.Finalized)

	fresh, err := f.store.Orders().FindByID(context.Background(), "order-fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, fresh.PaymentStatus)
	assert.Equal(t, 3, stockOf(t, f.store, "mug"))
}

func TestPaymentReconcilerRefusesPaymentForCancelledOrder(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow.Add(-2*time.Hour))
	f.gateway.setSession(paidSession("order-1"))
	ctx := context.Background()

	orders, err := NewOrderService(OrderServiceDeps{Orders: f.store.Orders(), Clock: fixedClock})
	require.NoError(t, err)
	cancelled, err := orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: "order-1", Status: "cancelled", ActorID: "staff"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.OrderStatus)

	_, err = f.service.VerifyAndFinalize(ctx, VerifyPaymentCommand{SessionID: "cs_order-1", Viewer: Viewer{UserID: "buyer-1"}})
	require.ErrorIs(t, err, ErrPaymentOrderCancelled)

	event, ok := f.logs.find("order.reconcile.paid_after_cancel")
	require.True(t, ok)
	assert.Equal(t, "ERROR", event.fields["severity"])

	f.gateway.event = payments.WebhookEvent{ID: "evt_late", Type: payments.EventCheckoutSessionCompleted, Session: paidSession("order-1")}
	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "sig"))

	summary, err := f.service.ReconcilePending(ctx, ReconcilePendingCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)

	order, err := f.store.Orders().FindByID(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, order.Finalized)
	assert.Equal(t, domain.OrderStatusCancelled, order.OrderStatus)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 5, stockOf(t, f.store, "mug"))

	cart, err := f.store.Carts().Get(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Empty(t, f.publisher.types())
}

func TestPaymentReconcilerWebhookAcknowledgesStockShortfall(t *testing.T) {
	f := newReconcilerFixture(t, mugProduct())
	f.seedCardOrder(t, "order-1", "buyer-1", testNow)
	_, err := f.store.Products().AdjustStock(context.Background(), "mug", -4)
	require.NoError(t, err)
	f.gateway.event = payments.WebhookEvent{ID: "evt_short", Type: payments.EventCheckoutSessionCompleted, Session: paidSession("order-1")}

	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "sig"))

	_, ok := f.logs.find("order.reconcile.stock_shortfall")
	assert.True(t, ok)
	order, err := f.store.Orders().FindByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, order.Finalized)
	assert.Equal(t, 1, stockOf(t, f.store, "mug"))
}
