package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller may not access the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates the requested status change is not permitted.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderUnavailable indicates a required collaborator is not configured.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders  repositories.OrderRepository
	Uploads ObjectUploader
	Events  OrderEventPublisher
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders  repositories.OrderRepository
	uploads ObjectUploader
	events  OrderEventPublisher
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:  deps.Orders,
		uploads: deps.Uploads,
		events:  deps.Events,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, viewer Viewer, orderID string) (Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !viewer.IsAdmin && order.UserID != viewer.UserID {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrOrderInvalidInput
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("order service: list orders: %w", err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	repoFilter := repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Pagination: filter.Pagination,
	}
	if raw := strings.TrimSpace(filter.OrderStatus); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		if !domain.IsValidOrderStatus(status) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.OrderStatus = status
	}
	if raw := strings.TrimSpace(filter.PaymentStatus); raw != "" {
		status := domain.PaymentStatus(strings.ToLower(raw))
		if !domain.IsValidPaymentStatus(status) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.PaymentStatus = status
	}
	if raw := strings.TrimSpace(filter.PaymentMethod); raw != "" {
		method, ok := domain.ParsePaymentMethod(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.PaymentMethod = method
	}
	page, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Order]{}, err
	}
	return page, nil
}

// UploadPaymentSlip stores proof of payment for a bank transfer order owned by the caller.
func (s *orderService) UploadPaymentSlip(ctx context.Context, cmd UploadPaymentSlipCommand) (Order, error) {
	if s.uploads == nil {
		return Order{}, ErrOrderUnavailable
	}
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != strings.TrimSpace(cmd.UserID) {
		return Order{}, ErrOrderForbidden
	}
	if order.PaymentMethod != domain.PaymentMethodBankTransfer {
		return Order{}, fmt.Errorf("%w: payment slips are only accepted for bank transfer orders", ErrOrderInvalidInput)
	}
	if cmd.Body == nil || cmd.Size == 0 {
		return Order{}, fmt.Errorf("%w: payment slip file is required", ErrOrderInvalidInput)
	}

	url, err := s.uploads.Upload(ctx, UploadObject{
		Kind:        UploadKindPaymentSlip,
		OwnerID:     order.ID,
		FileName:    cmd.FileName,
		ContentType: cmd.ContentType,
		Size:        cmd.Size,
		Body:        cmd.Body,
	})
	if err != nil {
		return Order{}, fmt.Errorf("order service: upload payment slip: %w", err)
	}

	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		o.PaymentSlipURL = url
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.payment_slip_uploaded", map[string]any{"orderId": order.ID, "userId": order.UserID})
	return updated, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if !domain.IsValidOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		previous = o.OrderStatus
		if o.OrderStatus == target {
			return nil
		}
		if !domain.CanTransitionOrder(o.OrderStatus, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, o.OrderStatus, target)
		}
		if target != domain.OrderStatusCancelled && !o.Finalized {
			return fmt.Errorf("%w: order %s has not been paid for", ErrOrderInvalidTransition, o.ID)
		}
		o.OrderStatus = target
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if previous != target {
		s.logger(ctx, "order.status_changed", map[string]any{
			"orderId": updated.ID,
			"from":    string(previous),
			"to":      string(target),
			"actorId": cmd.ActorID,
		})
		s.publish(ctx, OrderEventStatusChanged, updated)
	}
	return updated, nil
}

// UpdatePaymentStatus records an admin payment decision. It never touches stock: non-card
// orders were finalized at checkout, and card orders are confirmed only by the gateway.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	target := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if !domain.IsValidPaymentStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var previous domain.PaymentStatus
	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		previous = o.PaymentStatus
		if o.PaymentStatus == target {
			return nil
		}
		if !domain.CanTransitionPayment(o.PaymentStatus, target) {
			return fmt.Errorf("%w: payment %s -> %s", ErrOrderInvalidTransition, o.PaymentStatus, target)
		}
		if target == domain.PaymentStatusPaid {
			if o.PaymentMethod == domain.PaymentMethodCard {
				return fmt.Errorf("%w: card payments are confirmed by the payment gateway", ErrOrderInvalidTransition)
			}
			if !o.Finalized {
				return fmt.Errorf("%w: order %s was never finalized", ErrOrderInvalidTransition, o.ID)
			}
			if o.OrderStatus == domain.OrderStatusPending {
				o.OrderStatus = domain.OrderStatusProcessing
			}
		}
		o.PaymentStatus = target
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if previous != target {
		s.logger(ctx, "order.payment_status_changed", map[string]any{
			"orderId": updated.ID,
			"from":    string(previous),
			"to":      string(target),
			"actorId": cmd.ActorID,
		})
		s.publish(ctx, OrderEventPaymentStatusChanged, updated)
	}
	return updated, nil
}

// UpdateTracking sets the tracking number and/or appends one history entry.
func (s *orderService) UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if cmd.TrackingNumber == nil && cmd.Event == nil {
		return Order{}, fmt.Errorf("%w: tracking number or event is required", ErrOrderInvalidInput)
	}
	var event *domain.TrackingEvent
	if cmd.Event != nil {
		status := strings.TrimSpace(cmd.Event.Status)
		if status == "" {
			return Order{}, fmt.Errorf("%w: tracking event status is required", ErrOrderInvalidInput)
		}
		ts := s.now()
		if cmd.Event.Timestamp != nil && !cmd.Event.Timestamp.IsZero() {
			ts = cmd.Event.Timestamp.UTC()
		}
		event = &domain.TrackingEvent{
			Status:      status,
			Location:    strings.TrimSpace(cmd.Event.Location),
			Description: strings.TrimSpace(cmd.Event.Description),
			Timestamp:   ts,
		}
	}

	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		if cmd.TrackingNumber != nil {
			o.TrackingNumber = strings.TrimSpace(*cmd.TrackingNumber)
		}
		if event != nil {
			o.TrackingHistory = append(o.TrackingHistory, *event)
		}
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.tracking_updated", map[string]any{
		"orderId":        updated.ID,
		"trackingNumber": updated.TrackingNumber,
		"events":         len(updated.TrackingHistory),
		"actorId":        cmd.ActorID,
	})
	return updated, nil
}

func (s *orderService) load(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderInvalidTransition) || errors.Is(err, ErrOrderInvalidInput) {
		return err
	}
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	}
	return err
}

func (s *orderService) publish(ctx context.Context, eventType string, order domain.Order) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, newOrderEvent(eventType, order, s.now())); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}
