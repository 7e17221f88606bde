package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/config"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories/memory"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

type stubGateway struct{}

func (stubGateway) CreateCheckoutSession(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	return payments.CheckoutSession{}, errors.New("not used")
}

func (stubGateway) RetrieveCheckoutSession(context.Context, string) (payments.CheckoutSession, error) {
	return payments.CheckoutSession{}, errors.New("not used")
}

func (stubGateway) ParseWebhook([]byte, string) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, errors.New("not used")
}

func testConfig() config.Config {
	return config.Config{
		Payments: config.PaymentConfig{
			Currency:           "usd",
			ConversionRate:     "300",
			FrontendURL:        "http://localhost:5173",
			ReconcileAfter:     30 * time.Minute,
			ReconcileBatchSize: 20,
		},
	}
}

func TestNewContainerWithoutPaymentsLeavesCheckoutUnset(t *testing.T) {
	repos := MemoryRepositories(memory.NewStore())

	container, err := NewContainer(testConfig(), repos, Infrastructure{})
	require.NoError(t, err)

	svc := container.Services
	assert.NotNil(t, svc.Inventory)
	assert.NotNil(t, svc.Cart)
	assert.NotNil(t, svc.Catalog)
	assert.NotNil(t, svc.Orders)
	assert.NotNil(t, svc.Reviews)
	assert.NotNil(t, svc.Users)
	assert.NotNil(t, svc.Settings)
	assert.Nil(t, svc.Checkout)
	assert.Nil(t, svc.Payments)
	assert.Nil(t, svc.System)
}

func TestNewContainerBuildsCheckoutWithGateway(t *testing.T) {
	repos := MemoryRepositories(memory.NewStore())

	container, err := NewContainer(testConfig(), repos, Infrastructure{Payments: stubGateway{}})
	require.NoError(t, err)

	assert.NotNil(t, container.Services.Checkout)
	assert.NotNil(t, container.Services.Payments)
}

func TestNewContainerRejectsBadConversionRate(t *testing.T) {
	cfg := testConfig()
	cfg.Payments.ConversionRate = "three hundred"

	_, err := NewContainer(cfg, MemoryRepositories(memory.NewStore()), Infrastructure{Payments: stubGateway{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversion rate")
}

func TestNewContainerRequiresCoreRepositories(t *testing.T) {
	_, err := NewContainer(testConfig(), Repositories{}, Infrastructure{})
	require.Error(t, err)
}

func TestContainerServicesShareRepositories(t *testing.T) {
	ctx := context.Background()
	repos := MemoryRepositories(memory.NewStore())
	require.NoError(t, repos.Products.Insert(ctx, domain.Product{ID: "prod-1", Name: "Rose Bouquet", OriginalPrice: 2500, Stock: 1}))

	container, err := NewContainer(testConfig(), repos, Infrastructure{})
	require.NoError(t, err)

	stock, err := container.Services.Inventory.Restock(ctx, services.RestockCommand{ProductID: "prod-1", Quantity: 4, ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 5, stock)

	product, err := container.Services.Catalog.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
}

func TestContainerCloseRunsHooksInReverse(t *testing.T) {
	container, err := NewContainer(testConfig(), MemoryRepositories(memory.NewStore()), Infrastructure{})
	require.NoError(t, err)

	var order []string
	container.OnClose(func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	container.OnClose(func(context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})

	err = container.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, container.Close(context.Background()))
}
