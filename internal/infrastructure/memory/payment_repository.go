package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

// PaymentRepository is an append-only log of attempts and discrepancies.
type PaymentRepository struct {
	mu            sync.RWMutex
	attempts      []domain.Attempt
	discrepancies []domain.Discrepancy
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

func (r *PaymentRepository) AppendAttempt(ctx context.Context, a domain.Attempt) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *PaymentRepository) ListAttempts(ctx context.Context, orderID string) ([]domain.Attempt, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Attempt, 0)
	for _, a := range r.attempts {
		if orderID == "" || a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *PaymentRepository) AppendDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	r.discrepancies = append(r.discrepancies, d)
	return nil
}

func (r *PaymentRepository) ListDiscrepancies(ctx context.Context) ([]domain.Discrepancy, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Discrepancy(nil), r.discrepancies...), nil
}
