package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds the live stock.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates the product document is missing.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
)

// InventoryError wraps stock failures with machine readable codes and the offending product.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Message   string
	Err       error
}

var _ RepositoryError = (*InventoryError)(nil)

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the referenced product is missing.
func (e *InventoryError) IsNotFound() bool {
	return e != nil && e.Code == InventoryErrorProductNotFound
}

// IsConflict reports whether live stock could not satisfy the request.
func (e *InventoryError) IsConflict() bool {
	return e != nil && e.Code == InventoryErrorInsufficientStock
}

// IsUnavailable is always false; transport failures surface as plain repository errors.
func (e *InventoryError) IsUnavailable() bool {
	return false
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, productID, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:      code,
		ProductID: productID,
		Message:   message,
		Err:       err,
	}
}

// InsufficientStock builds the error returned when a decrement would drive stock negative.
func InsufficientStock(productID string, available, requested int) *InventoryError {
	return NewInventoryError(InventoryErrorInsufficientStock, productID,
		fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested), nil)
}

// ProductNotFound builds the error returned when a stock operation targets an unknown product.
func ProductNotFound(productID string, err error) *InventoryError {
	return NewInventoryError(InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
}

// AsInventoryError extracts an InventoryError from err.
func AsInventoryError(err error) (*InventoryError, bool) {
	var invErr *InventoryError
	if errors.As(err, &invErr) && invErr != nil {
		return invErr, true
	}
	return nil, false
}
