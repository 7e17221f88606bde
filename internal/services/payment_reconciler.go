package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/payments"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const (
	reconcilerMeterName         = "github.com/Rushan-dev/jeyani-gift-shop/internal/services/payments"
	defaultReconcileAfter       = 30 * time.Minute
	defaultReconcileBatchSize   = 50
	sessionMetadataOrderIDKey   = "orderId"
	reconcileOutcomeFinalized   = "finalized"
	reconcileOutcomeAlreadyDone = "already_finalized"
	reconcileOutcomeFailed      = "failed"
	reconcileOutcomePending     = "pending"
	reconcileOutcomeRejected    = "rejected"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidSession indicates the session is unknown or not correlated to an order.
	ErrPaymentInvalidSession = errors.New("payment: invalid session")
	// ErrPaymentInvalidSignature indicates a webhook failed signature verification.
	ErrPaymentInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrPaymentGatewayFailure indicates the gateway could not be reached or returned an error.
	ErrPaymentGatewayFailure = errors.New("payment: gateway failure")
	// ErrPaymentOrderCancelled indicates funds arrived for an order staff had already cancelled.
	ErrPaymentOrderCancelled = errors.New("payment: order was cancelled before payment completed")
)

// paymentSessionReader abstracts payments.Provider for easier testing.
type paymentSessionReader interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (payments.CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error)
}

// PaymentReconcilerDeps wires the dependencies required by the payment reconciler.
type PaymentReconcilerDeps struct {
	Orders         repositories.OrderRepository
	Payments       paymentSessionReader
	Events         OrderEventPublisher
	ReconcileAfter time.Duration
	BatchSize      int
	Meter          metric.Meter
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type paymentReconciler struct {
	orders         repositories.OrderRepository
	payments       paymentSessionReader
	events         OrderEventPublisher
	reconcileAfter time.Duration
	batchSize      int
	now            func() time.Time
	logger         func(ctx context.Context, event string, fields map[string]any)
	outcomes       metric.Int64Counter
}

// NewPaymentReconciler constructs a PaymentReconciler validating required dependencies.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (PaymentReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment reconciler: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment reconciler: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	after := deps.ReconcileAfter
	if after <= 0 {
		after = defaultReconcileAfter
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(reconcilerMeterName)
	}
	outcomes, err := meter.Int64Counter("payments.reconcile_outcomes",
		metric.WithDescription("Card order reconciliation outcomes"))
	if err != nil {
		return nil, fmt.Errorf("payment reconciler: register metric: %w", err)
	}

	return &paymentReconciler{
		orders:         deps.Orders,
		payments:       deps.Payments,
		events:         deps.Events,
		reconcileAfter: after,
		batchSize:      batch,
		now:            func() time.Time { return clock().UTC() },
		logger:         logger,
		outcomes:       outcomes,
	}, nil
}

// VerifyAndFinalize reads the gateway session and, when paid, finalizes the correlated order.
// Repeated calls for an already finalized order return it unchanged.
func (r *paymentReconciler) VerifyAndFinalize(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerification, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return PaymentVerification{}, fmt.Errorf("%w: session id is required", ErrPaymentInvalidInput)
	}

	session, err := r.payments.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return PaymentVerification{}, fmt.Errorf("%w: %s", ErrPaymentInvalidSession, sessionID)
		}
		r.logger(ctx, "payment.session_lookup_failed", map[string]any{"sessionId": sessionID, "error": err})
		return PaymentVerification{}, fmt.Errorf("%w: %v", ErrPaymentGatewayFailure, err)
	}

	order, err := r.correlatedOrder(ctx, session)
	if err != nil {
		return PaymentVerification{}, err
	}
	if viewer := cmd.Viewer; viewer.UserID != "" && !viewer.IsAdmin && order.UserID != viewer.UserID {
		return PaymentVerification{}, ErrOrderForbidden
	}
	return r.reconcile(ctx, order, session)
}

// HandleWebhook processes verified checkout session notifications. Events that cannot be
// correlated to an order, or that no retry could ever settle, are acknowledged so the gateway
// stops redelivering them.
func (r *paymentReconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := r.payments.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return fmt.Errorf("%w: %v", ErrPaymentInvalidSignature, err)
		}
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	switch event.Type {
	case payments.EventCheckoutSessionCompleted, payments.EventCheckoutSessionExpired:
	default:
		r.logger(ctx, "payment.webhook.ignored", map[string]any{"eventId": event.ID, "type": event.Type})
		return nil
	}

	order, err := r.correlatedOrder(ctx, event.Session)
	if err != nil {
		if errors.Is(err, ErrPaymentInvalidSession) || errors.Is(err, ErrOrderNotFound) {
			r.logger(ctx, "payment.webhook.uncorrelated", map[string]any{
				"eventId":   event.ID,
				"sessionId": event.Session.ID,
				"error":     err.Error(),
			})
			return nil
		}
		return err
	}
	_, err = r.reconcile(ctx, order, event.Session)
	if errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrPaymentOrderCancelled) {
		// Already logged at ERROR for manual follow-up.
		return nil
	}
	return err
}

// ReconcilePending sweeps card orders whose buyer never returned from the hosted payment page.
func (r *paymentReconciler) ReconcilePending(ctx context.Context, cmd ReconcilePendingCommand) (ReconcileSummary, error) {
	olderThan := cmd.OlderThan
	if olderThan <= 0 {
		olderThan = r.reconcileAfter
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = r.batchSize
	}

	orders, err := r.orders.ListAwaitingPayment(ctx, r.now().Add(-olderThan), limit)
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("payment reconciler: list awaiting payment: %w", err)
	}

	var summary ReconcileSummary
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if strings.TrimSpace(order.PaymentSessionID) == "" {
			continue
		}
		summary.Checked++
		session, err := r.payments.RetrieveCheckoutSession(ctx, order.PaymentSessionID)
		if err != nil {
			summary.Errors++
			r.logger(ctx, "payment.reconcile.retrieve_failed", map[string]any{
				"orderId":   order.ID,
				"sessionId": order.PaymentSessionID,
				"error":     err.Error(),
			})
			continue
		}
		result, err := r.reconcile(ctx, order, session)
		switch {
		case err != nil:
			summary.Errors++
		case result.Finalized:
			summary.Finalized++
		case result.Order.PaymentStatus == domain.PaymentStatusFailed:
			summary.Failed++
		}
	}

	r.logger(ctx, "payment.reconcile.completed", map[string]any{
		"checked":   summary.Checked,
		"finalized": summary.Finalized,
		"failed":    summary.Failed,
		"errors":    summary.Errors,
	})
	return summary, nil
}

func (r *paymentReconciler) correlatedOrder(ctx context.Context, session payments.CheckoutSession) (domain.Order, error) {
	orderID := strings.TrimSpace(session.Metadata[sessionMetadataOrderIDKey])
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: session %s carries no order reference", ErrPaymentInvalidSession, session.ID)
	}
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodCard {
		return domain.Order{}, fmt.Errorf("%w: order %s is not a card order", ErrPaymentInvalidSession, orderID)
	}
	if order.PaymentSessionID != "" && session.ID != "" && order.PaymentSessionID != session.ID {
		return domain.Order{}, fmt.Errorf("%w: session %s does not belong to order %s", ErrPaymentInvalidSession, session.ID, orderID)
	}
	return order, nil
}

func (r *paymentReconciler) reconcile(ctx context.Context, order domain.Order, session payments.CheckoutSession) (PaymentVerification, error) {
	raw := string(session.PaymentStatus)
	switch {
	case session.PaymentStatus == payments.SessionPaymentPaid || session.PaymentStatus == payments.SessionPaymentNoPaymentRequired:
		return r.finalizePaid(ctx, order, raw)
	case session.Status == payments.SessionStatusExpired && !order.Finalized && order.PaymentStatus == domain.PaymentStatusPending:
		updated, err := r.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
			if o.Finalized || o.PaymentStatus != domain.PaymentStatusPending {
				return nil
			}
			o.PaymentStatus = domain.PaymentStatusFailed
			return nil
		})
		if err != nil {
			return PaymentVerification{}, fmt.Errorf("payment reconciler: mark failed: %w", err)
		}
		r.record(ctx, reconcileOutcomeFailed)
		r.logger(ctx, "payment.session_expired", map[string]any{"orderId": order.ID, "sessionId": session.ID})
		r.publish(ctx, OrderEventPaymentStatusChanged, updated)
		return PaymentVerification{Order: updated, PaymentStatus: raw}, nil
	default:
		r.record(ctx, reconcileOutcomePending)
		return PaymentVerification{Order: order, PaymentStatus: raw}, nil
	}
}

func (r *paymentReconciler) finalizePaid(ctx context.Context, order domain.Order, raw string) (PaymentVerification, error) {
	result, err := r.orders.Finalize(ctx, repositories.FinalizeRequest{
		OrderID: order.ID,
		Now:     r.now(),
		Apply: func(o *domain.Order) error {
			if o.OrderStatus == domain.OrderStatusCancelled {
				return fmt.Errorf("%w: %s", ErrPaymentOrderCancelled, o.ID)
			}
			o.PaymentStatus = domain.PaymentStatusPaid
			if o.OrderStatus == domain.OrderStatusPending {
				o.OrderStatus = domain.OrderStatusProcessing
			}
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, ErrPaymentOrderCancelled) {
			// Funds were captured for a cancelled order; staff must refund by hand.
			r.record(ctx, reconcileOutcomeRejected)
			r.logger(ctx, "order.reconcile.paid_after_cancel", map[string]any{
				"severity": "ERROR",
				"orderId":  order.ID,
				"userId":   order.UserID,
			})
			return PaymentVerification{}, err
		}
		mapped := mapInventoryError(err)
		if errors.Is(mapped, ErrInsufficientStock) {
			// Funds were captured but stock ran out; staff must refund or restock by hand.
			r.logger(ctx, "order.reconcile.stock_shortfall", map[string]any{
				"severity": "ERROR",
				"orderId":  order.ID,
				"error":    err.Error(),
			})
		}
		return PaymentVerification{}, mapped
	}
	if !result.Applied {
		r.record(ctx, reconcileOutcomeAlreadyDone)
		return PaymentVerification{Order: result.Order, PaymentStatus: raw}, nil
	}

	r.record(ctx, reconcileOutcomeFinalized)
	r.logger(ctx, "payment.order_finalized", map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"stock":   result.Stock,
	})
	r.publish(ctx, OrderEventFinalized, result.Order)
	return PaymentVerification{Order: result.Order, PaymentStatus: raw, Finalized: true}, nil
}

func (r *paymentReconciler) record(ctx context.Context, outcome string) {
	r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (r *paymentReconciler) publish(ctx context.Context, eventType string, order domain.Order) {
	if r.events == nil {
		return
	}
	if _, err := r.events.PublishOrderEvent(ctx, newOrderEvent(eventType, order, r.now())); err != nil {
		r.logger(ctx, "payment.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}
