package domain

import "slices"

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusPending, PaymentStatusPaid},
}

// IsValidOrderStatus reports whether status is one of the known order states.
func IsValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsValidPaymentStatus reports whether status is one of the known payment states.
func IsValidPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// CanTransitionOrder reports whether the order lifecycle permits moving from -> to.
// Repeating the current state is allowed and treated as a no-op by callers.
func CanTransitionOrder(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	return slices.Contains(orderStatusTransitions[from], to)
}

// CanTransitionPayment reports whether the payment lifecycle permits moving from -> to.
func CanTransitionPayment(from, to PaymentStatus) bool {
	if from == to {
		return true
	}
	return slices.Contains(paymentStatusTransitions[from], to)
}

// IsTerminal reports whether no further order transitions exist.
func (s OrderStatus) IsTerminal() bool {
	return len(orderStatusTransitions[s]) == 0
}
