package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const (
	checkoutMeterName          = "github.com/Rushan-dev/jeyani-gift-shop/internal/services/checkout"
	checkoutLoadConcurrency    = 8
	defaultSettlementCurrency  = "usd"
	defaultCheckoutFrontendURL = "http://localhost:5173"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutPaymentFailed indicates the hosted payment session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// checkoutSessionCreator abstracts payments.Provider for easier testing.
type checkoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
	Payments checkoutSessionCreator
	Events   OrderEventPublisher
	// SettlementCurrency is the gateway currency card totals are converted into.
	SettlementCurrency string
	// ConversionRate is the fixed number of shop currency units per settlement currency unit.
	ConversionRate decimal.Decimal
	FrontendURL    string
	Meter          metric.Meter
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	products    repositories.ProductRepository
	orders      repositories.OrderRepository
	payments    checkoutSessionCreator
	events      OrderEventPublisher
	currency    string
	rate        decimal.Decimal
	frontendURL string
	now         func() time.Time
	newID       func() string
	logger      func(ctx context.Context, event string, fields map[string]any)
	created     metric.Int64Counter
	failed      metric.Int64Counter
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if !deps.ConversionRate.IsPositive() {
		return nil, errors.New("checkout service: conversion rate must be positive")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToLower(strings.TrimSpace(deps.SettlementCurrency))
	if currency == "" {
		currency = defaultSettlementCurrency
	}
	frontend := strings.TrimRight(strings.TrimSpace(deps.FrontendURL), "/")
	if frontend == "" {
		frontend = defaultCheckoutFrontendURL
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(checkoutMeterName)
	}

	svc := &checkoutService{
		products:    deps.Products,
		orders:      deps.Orders,
		payments:    deps.Payments,
		events:      deps.Events,
		currency:    currency,
		rate:        deps.ConversionRate,
		frontendURL: frontend,
		now:         func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}

	var err error
	if svc.created, err = meter.Int64Counter("checkout.orders_created",
		metric.WithDescription("Orders persisted by checkout, by payment method")); err != nil {
		return nil, fmt.Errorf("checkout service: register metric: %w", err)
	}
	if svc.failed, err = meter.Int64Counter("checkout.orders_failed",
		metric.WithDescription("Checkout attempts rejected or rolled back, by reason")); err != nil {
		return nil, fmt.Errorf("checkout service: register metric: %w", err)
	}
	return svc, nil
}

// CreateOrder validates the request against live inventory, persists the order and either
// opens a hosted payment session (card) or finalizes immediately (other methods).
func (s *checkoutService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CheckoutResult, error) {
	method, lines, address, err := s.validate(cmd)
	if err != nil {
		s.recordFailure(ctx, "invalid_input")
		return CheckoutResult{}, err
	}

	products, err := s.loadProducts(ctx, lines)
	if err != nil {
		s.recordFailure(ctx, failureReason(err))
		return CheckoutResult{}, err
	}

	order := s.buildOrder(strings.TrimSpace(cmd.UserID), method, address, lines, products)
	if err := s.orders.Insert(ctx, order); err != nil {
		s.recordFailure(ctx, "persist")
		return CheckoutResult{}, fmt.Errorf("checkout: persist order: %w", err)
	}

	result := CheckoutResult{Order: order}
	if method == domain.PaymentMethodCard {
		session, err := s.openPaymentSession(ctx, order, strings.TrimSpace(cmd.UserEmail))
		if err != nil {
			s.rollback(ctx, order.ID, err)
			s.recordFailure(ctx, "payment_session")
			return CheckoutResult{}, err
		}
		result.Order = session.order
		result.CheckoutURL = session.url
		result.SessionID = session.id
	} else {
		finalized, err := s.orders.Finalize(ctx, repositories.FinalizeRequest{OrderID: order.ID, Now: s.now()})
		if err != nil {
			s.rollback(ctx, order.ID, err)
			mapped := mapInventoryError(err)
			s.recordFailure(ctx, failureReason(mapped))
			return CheckoutResult{}, mapped
		}
		result.Order = finalized.Order
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
	s.logger(ctx, "checkout.order_created", map[string]any{
		"orderId":       order.ID,
		"userId":        order.UserID,
		"paymentMethod": string(method),
		"totalAmount":   order.TotalAmount,
		"finalized":     result.Order.Finalized,
	})
	s.publish(ctx, OrderEventCreated, result.Order)
	if result.Order.Finalized {
		s.publish(ctx, OrderEventFinalized, result.Order)
	}
	return result, nil
}

func (s *checkoutService) validate(cmd CreateOrderCommand) (domain.PaymentMethod, []OrderLineInput, domain.ShippingAddress, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return "", nil, domain.ShippingAddress{}, fmt.Errorf("%w: user is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return "", nil, domain.ShippingAddress{}, fmt.Errorf("%w: no order items", ErrCheckoutInvalidInput)
	}
	address := cmd.ShippingAddress.Normalize()
	if missing := address.MissingFields(); len(missing) > 0 {
		return "", nil, domain.ShippingAddress{}, fmt.Errorf("%w: shipping address missing %s", ErrCheckoutInvalidInput, strings.Join(missing, ", "))
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return "", nil, domain.ShippingAddress{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}

	// Repeated products collapse into the first line so each product is charged shipping once.
	merged := make([]OrderLineInput, 0, len(cmd.Items))
	index := make(map[string]int, len(cmd.Items))
	for _, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return "", nil, domain.ShippingAddress{}, fmt.Errorf("%w: product id is required", ErrCheckoutInvalidInput)
		}
		if item.Quantity < 1 {
			return "", nil, domain.ShippingAddress{}, fmt.Errorf("%w: quantity for %s must be at least 1", ErrCheckoutInvalidInput, productID)
		}
		if i, ok := index[productID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, OrderLineInput{ProductID: productID, Quantity: item.Quantity})
	}
	return method, merged, address, nil
}

// loadProducts fetches every referenced product concurrently and checks live stock.
func (s *checkoutService) loadProducts(ctx context.Context, lines []OrderLineInput) ([]domain.Product, error) {
	products := make([]domain.Product, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkoutLoadConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			product, err := s.products.FindByID(gctx, line.ProductID)
			if err != nil {
				if repositories.IsNotFound(err) {
					return fmt.Errorf("%w: %w", ErrProductNotFound, repositories.ProductNotFound(line.ProductID, err))
				}
				return fmt.Errorf("checkout: load product %s: %w", line.ProductID, err)
			}
			if product.Stock < line.Quantity {
				return stockShortfall(line.ProductID, product.Stock, line.Quantity)
			}
			products[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *checkoutService) buildOrder(userID string, method domain.PaymentMethod, address domain.ShippingAddress, lines []OrderLineInput, products []domain.Product) domain.Order {
	now := s.now()
	order := domain.Order{
		ID:              s.newID(),
		UserID:          userID,
		Items:           make([]domain.OrderItem, 0, len(lines)),
		ShippingAddress: address,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusPending,
		TrackingHistory: []domain.TrackingEvent{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, line := range lines {
		product := products[i]
		item := domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Price:     product.UnitPrice(),
		}
		if len(product.Images) > 0 {
			item.Image = product.Images[0]
		}
		order.Items = append(order.Items, item)
		order.Subtotal += item.LineTotal()
		order.ShippingFee += product.ShippingFee
	}
	order.TotalAmount = order.Subtotal + order.ShippingFee
	return order
}

type openedSession struct {
	order domain.Order
	id    string
	url   string
}

func (s *checkoutService) openPaymentSession(ctx context.Context, order domain.Order, email string) (openedSession, error) {
	amount := s.settlementAmount(order.TotalAmount)
	if amount <= 0 {
		return openedSession{}, fmt.Errorf("%w: order total converts to a non-positive amount", ErrCheckoutPaymentFailed)
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Currency:      s.currency,
		CustomerEmail: email,
		SuccessURL:    fmt.Sprintf("%s/orders/%s?success=true&session_id={CHECKOUT_SESSION_ID}", s.frontendURL, order.ID),
		CancelURL:     s.frontendURL + "/checkout?canceled=true",
		Metadata: map[string]string{
			"orderId":        order.ID,
			"userId":         order.UserID,
			"originalAmount": strconv.FormatInt(order.TotalAmount, 10),
		},
		IdempotencyKey: "checkout-" + order.ID,
		Items: []payments.CheckoutLineItem{{
			Name:     "Order #" + order.ShortID(),
			Quantity: 1,
			Amount:   amount,
		}},
	})
	if err != nil {
		return openedSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	if strings.TrimSpace(session.RedirectURL) == "" {
		return openedSession{}, fmt.Errorf("%w: session %s returned no redirect url", ErrCheckoutPaymentFailed, session.ID)
	}

	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		o.PaymentSessionID = session.ID
		return nil
	})
	if err != nil {
		return openedSession{}, fmt.Errorf("%w: record session: %v", ErrCheckoutPaymentFailed, err)
	}
	return openedSession{order: updated, id: session.ID, url: session.RedirectURL}, nil
}

// settlementAmount converts a shop-currency total into settlement minor units at the fixed rate.
func (s *checkoutService) settlementAmount(total int64) int64 {
	return decimal.NewFromInt(total).
		Div(s.rate).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

func (s *checkoutService) rollback(ctx context.Context, orderID string, cause error) {
	// The caller's context may already be cancelled; the delete must still run.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	fields := map[string]any{
		"orderId": orderID,
		"cause":   cause.Error(),
	}
	if err := s.orders.Delete(cleanupCtx, orderID); err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "checkout.rollback_failed", fields)
		return
	}
	s.logger(ctx, "checkout.rolled_back", fields)
}

func (s *checkoutService) publish(ctx context.Context, eventType string, order domain.Order) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, newOrderEvent(eventType, order, s.now())); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) recordFailure(ctx context.Context, reason string) {
	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	default:
		return "internal"
	}
}

func newOrderEvent(eventType string, order domain.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		OrderStatus:   string(order.OrderStatus),
		TotalAmount:   order.TotalAmount,
		OccurredAt:    at,
	}
}
