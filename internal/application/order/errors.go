package order

import (
	"errors"
	"fmt"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

var (
	ErrProductNotFound     = errors.New("order: product not found")
	ErrOutOfStock          = errors.New("order: out of stock")
	ErrPaymentFailed       = errors.New("order: payment failed")
	ErrLedgerInconsistency = errors.New("order: ledger inconsistency")
	ErrInvalidRequest      = errors.New("order: invalid request")
	// ErrTransient marks failures the caller may retry unchanged, such as storage outages or
	// exhausted concurrency retries.
	ErrTransient = errors.New("order: temporarily unavailable")
)

type OutOfStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("order: out of stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// LedgerInconsistencyError means a reservation could not be released after a failed charge,
// so stock is under-counted by Quantity until someone fixes it by hand.
type LedgerInconsistencyError struct {
	OrderID   string
	ProductID string
	Quantity  int64
	Err       error
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("order: %d units of %s stay reserved for failed order %s: %v", e.Quantity, e.ProductID, e.OrderID, e.Err)
}

func (e *LedgerInconsistencyError) Unwrap() []error { return []error{ErrLedgerInconsistency, e.Err} }

// PaymentFailedError reports a declined or unreachable charge. Unless Inconsistency is set,
// the reserved stock has already been restored.
type PaymentFailedError struct {
	OrderID          string
	Outcome          dompay.Outcome
	Reason           string
	BankResponseCode *string
	Inconsistency    *LedgerInconsistencyError
}

func (e *PaymentFailedError) Error() string {
	msg := fmt.Sprintf("order: payment failed for %s (%s)", e.OrderID, e.Outcome)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Inconsistency != nil {
		msg += "; " + e.Inconsistency.Error()
	}
	return msg
}

func (e *PaymentFailedError) Unwrap() []error {
	if e.Inconsistency != nil {
		return []error{ErrPaymentFailed, e.Inconsistency}
	}
	return []error{ErrPaymentFailed}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func transient(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransient, step, err)
}
