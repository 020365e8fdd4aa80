package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrVersionConflict is returned by Store.CompareAndSet when the record moved since it was read.
	ErrVersionConflict = errors.New("inventory: version conflict")
	// ErrConflictRetriesExhausted means every commit attempt lost a race. Callers may retry later.
	ErrConflictRetriesExhausted = errors.New("inventory: conflict retries exhausted")
)

// InsufficientStockError reports how much stock was available when a reservation was refused.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Record is the stock counter of one product as last committed.
type Record struct {
	ProductID string
	Stock     int64
	Version   int64
}

// Mutation computes the proposed stock from a freshly read record. It must not have side effects,
// since it runs again on every retry.
type Mutation func(Record) (int64, error)

// Reserve proposes taking quantity out of stock, refusing anything that would go below zero.
func Reserve(quantity int64) Mutation {
	return func(r Record) (int64, error) {
		if quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
		if r.Stock < quantity {
			return 0, &InsufficientStockError{ProductID: r.ProductID, Requested: quantity, Available: r.Stock}
		}
		return r.Stock - quantity, nil
	}
}

// Release proposes putting quantity back into stock.
func Release(quantity int64) Mutation {
	return func(r Record) (int64, error) {
		if quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
		return r.Stock + quantity, nil
	}
}
