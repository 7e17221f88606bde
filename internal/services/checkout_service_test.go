package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/memory"
)

var testAddress = domain.ShippingAddress{
	Name:       "Nimali Perera",
	Phone:      "0771234567",
	Address:    "12 Temple Road",
	City:       "Kandy",
	PostalCode: "20000",
}

func mugProduct() domain.Product {
	return domain.Product{ID: "mug", Name: "Painted Mug", OriginalPrice: 1000, ShippingFee: 200, Stock: 5, Images: []string{"https://img.test/mug.jpg"}}
}

type checkoutFixture struct {
	store     *memory.Store
	gateway   *fakeGateway
	publisher *recordingPublisher
	service   CheckoutService
}

func newCheckoutFixture(t *testing.T, products ...domain.Product) checkoutFixture {
	t.Helper()
	store := newTestStore(t, products...)
	gateway := newFakeGateway()
	publisher := &recordingPublisher{}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Products:       store.Products(),
		Orders:         store.Orders(),
		Payments:       gateway,
		Events:         publisher,
		ConversionRate: decimal.NewFromInt(300),
		FrontendURL:    "https://shop.test/",
		Clock:          fixedClock,
		IDGenerator:    sequentialIDs("order"),
	})
	require.NoError(t, err)
	return checkoutFixture{store: store, gateway: gateway, publisher: publisher, service: svc}
}

func (f checkoutFixture) orderCount(t *testing.T) int {
	t.Helper()
	page, err := f.store.Orders().List(context.Background(), repositories.OrderListFilter{})
	require.NoError(t, err)
	return len(page.Items)
}

func TestCheckoutServiceCashOnDeliveryFinalizesImmediately(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	ctx := context.Background()
	_, err := f.store.Carts().Mutate(ctx, "buyer-1", func(cart *domain.Cart) error {
		cart.Items = append(cart.Items, domain.CartItem{ID: "ci-1", ProductID: "mug", Quantity: 2})
		return nil
	})
	require.NoError(t, err)

	result, err := f.service.CreateOrder(ctx, CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 2}},
		ShippingAddress: testAddress,
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	order := result.Order
	assert.Equal(t, int64(2000), order.Subtotal)
	assert.Equal(t, int64(200), order.ShippingFee)
	assert.Equal(t, int64(2200), order.TotalAmount)
	assert.Equal(t, domain.PaymentMethodCashOnDelivery, order.PaymentMethod)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, order.OrderStatus)
	assert.True(t, order.Finalized)
	assert.Empty(t, result.CheckoutURL)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "https://img.test/mug.jpg", order.Items[0].Image)

	assert.Equal(t, 3, stockOf(t, f.store, "mug"))
	cart, err := f.store.Carts().Get(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, []string{OrderEventCreated, OrderEventFinalized}, f.publisher.types())
	assert.Empty(t, f.gateway.requests)
}

func TestCheckoutServiceCardOpensSessionWithoutTouchingStock(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())

	result, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "buyer-1",
		UserEmail:       "buyer@example.com",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 2}},
		ShippingAddress: testAddress,
		PaymentMethod:   "stripe",
	})
	require.NoError(t, err)

	order := result.Order
	assert.False(t, order.Finalized)
	assert.Equal(t, domain.PaymentMethodCard, order.PaymentMethod)
	assert.Equal(t, "cs_test_"+order.ID, result.SessionID)
	assert.Equal(t, result.SessionID, order.PaymentSessionID)
	assert.Equal(t, "https://checkout.stripe.test/"+order.ID, result.CheckoutURL)
	assert.Equal(t, 5, stockOf(t, f.store, "mug"))

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "buyer@example.com", req.CustomerEmail)
	assert.Equal(t, "https://shop.test/orders/"+order.ID+"?success=true&session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://shop.test/checkout?canceled=true", req.CancelURL)
	assert.Equal(t, "checkout-"+order.ID, req.IdempotencyKey)
	assert.Equal(t, map[string]string{"orderId": order.ID, "userId": "buyer-1", "originalAmount": "2200"}, req.Metadata)
	require.Len(t, req.Items, 1)
	// 2200 LKR at 300 LKR/USD is 7.33 USD.
	assert.Equal(t, int64(733), req.Items[0].Amount)
	assert.Equal(t, int64(1), req.Items[0].Quantity)
	assert.Equal(t, "Order #"+order.ShortID(), req.Items[0].Name)

	assert.Equal(t, []string{OrderEventCreated}, f.publisher.types())
}

func TestCheckoutServiceCardSessionFailureRollsBackOrder(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	f.gateway.createFunc = func(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, errBoom
	}

	_, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   "card",
	})
	require.ErrorIs(t, err, ErrCheckoutPaymentFailed)
	assert.Zero(t, f.orderCount(t))
	assert.Equal(t, 5, stockOf(t, f.store, "mug"))
	assert.Empty(t, f.publisher.types())
}

func TestCheckoutServiceRollbackSurvivesCancelledContext(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.createFunc = func(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		cancel()
		return payments.CheckoutSession{}, context.Canceled
	}

	_, err := f.service.CreateOrder(ctx, CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   "card",
	})
	require.ErrorIs(t, err, ErrCheckoutPaymentFailed)
	assert.Zero(t, f.orderCount(t))
}

func TestCheckoutServiceRejectsInsufficientStock(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())

	_, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 6}},
		ShippingAddress: testAddress,
		PaymentMethod:   "cod",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	invErr, ok := repositories.AsInventoryError(err)
	require.True(t, ok)
	assert.Equal(t, "mug", invErr.ProductID)
	assert.Zero(t, f.orderCount(t))
	assert.Equal(t, 5, stockOf(t, f.store, "mug"))
}

func TestCheckoutServiceValidatesInput(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	ctx := context.Background()

	cases := map[string]CreateOrderCommand{
		"no items":        {UserID: "buyer-1", ShippingAddress: testAddress, PaymentMethod: "cod"},
		"missing address": {UserID: "buyer-1", Items: []OrderLineInput{{ProductID: "mug", Quantity: 1}}, PaymentMethod: "cod"},
		"unknown method":  {UserID: "buyer-1", Items: []OrderLineInput{{ProductID: "mug", Quantity: 1}}, ShippingAddress: testAddress, PaymentMethod: "cheque"},
		"zero quantity":   {UserID: "buyer-1", Items: []OrderLineInput{{ProductID: "mug", Quantity: 0}}, ShippingAddress: testAddress, PaymentMethod: "cod"},
		"no user":         {Items: []OrderLineInput{{ProductID: "mug", Quantity: 1}}, ShippingAddress: testAddress, PaymentMethod: "cod"},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.CreateOrder(ctx, cmd)
			require.ErrorIs(t, err, ErrCheckoutInvalidInput)
		})
	}
	assert.Zero(t, f.orderCount(t))
}

func TestCheckoutServiceUnknownProduct(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	_, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "ghost", Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   "bank_transfer",
	})
	require.ErrorIs(t, err, ErrProductNotFound)
	assert.Zero(t, f.orderCount(t))
}

func TestCheckoutServiceMergesRepeatedProductsAndUsesDiscount(t *testing.T) {
	mug := mugProduct()
	mug.DiscountPrice = int64Ptr(800)
	f := newCheckoutFixture(t, mug)

	result, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 1}, {ProductID: "mug", Quantity: 2}},
		ShippingAddress: testAddress,
		PaymentMethod:   "bank_transfer",
	})
	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 3, result.Order.Items[0].Quantity)
	assert.Equal(t, int64(800), result.Order.Items[0].Price)
	assert.Equal(t, int64(2400+200), result.Order.TotalAmount)
	assert.Equal(t, 2, stockOf(t, f.store, "mug"))
}

func TestCheckoutServiceLastUnitSellsOnce(t *testing.T) {
	candle := domain.Product{ID: "candle", Name: "Last Candle", OriginalPrice: 900, Stock: 1}
	f := newCheckoutFixture(t, candle)

	const buyers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
				UserID:          "buyer-" + string(rune('A'+i)),
				Items:           []OrderLineInput{{ProductID: "candle", Quantity: 1}},
				ShippingAddress: testAddress,
				PaymentMethod:   "cod",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInsufficientStock):
				shortages++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, buyers-1, shortages)
	assert.Equal(t, 0, stockOf(t, f.store, "candle"))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestNewCheckoutServiceRequiresConversionRate(t *testing.T) {
	store := newTestStore(t)
	_, err := NewCheckoutService(CheckoutServiceDeps{
		Products: store.Products(),
		Orders:   store.Orders(),
		Payments: newFakeGateway(),
	})
	require.Error(t, err)
}

func TestCheckoutServiceOrderKeepsPricesAfterCatalogEdit(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	ctx := context.Background()

	placed, err := f.service.CreateOrder(ctx, CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 2}},
		ShippingAddress: testAddress,
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	product, err := f.store.Products().FindByID(ctx, "mug")
	require.NoError(t, err)
	product.OriginalPrice = 4500
	product.DiscountPrice = int64Ptr(3900)
	product.ShippingFee = 650
	require.NoError(t, f.store.Products().Update(ctx, product))

	orders, err := NewOrderService(OrderServiceDeps{Orders: f.store.Orders(), Clock: fixedClock})
	require.NoError(t, err)
	fetched, err := orders.GetOrder(ctx, Viewer{UserID: "buyer-1"}, placed.Order.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), fetched.Subtotal)
	assert.Equal(t, int64(200), fetched.ShippingFee)
	assert.Equal(t, int64(2200), fetched.TotalAmount)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, int64(1000), fetched.Items[0].Price)
}

func TestCheckoutServiceBankTransferConfirmedWithoutSecondDecrement(t *testing.T) {
	f := newCheckoutFixture(t, mugProduct())
	ctx := context.Background()

	placed, err := f.service.CreateOrder(ctx, CreateOrderCommand{
		UserID:          "buyer-1",
		Items:           []OrderLineInput{{ProductID: "mug", Quantity: 2}},
		ShippingAddress: testAddress,
		PaymentMethod:   "bank_transfer",
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentMethodBankTransfer, placed.Order.PaymentMethod)
	require.True(t, placed.Order.Finalized)
	stockAfterCheckout := stockOf(t, f.store, "mug")
	assert.Equal(t, 3, stockAfterCheckout)

	orders, err := NewOrderService(OrderServiceDeps{Orders: f.store.Orders(), Clock: fixedClock})
	require.NoError(t, err)
	confirmed, err := orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: placed.Order.ID, Status: "paid", ActorID: "staff"})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, confirmed.PaymentStatus)
	assert.Equal(t, domain.OrderStatusProcessing, confirmed.OrderStatus)
	assert.Equal(t, stockAfterCheckout, stockOf(t, f.store, "mug"))
}
