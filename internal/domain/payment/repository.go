package payment

import "context"

// Repository is the append-only store of attempts and reconciliation discrepancies.
type Repository interface {
	AppendAttempt(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, orderID string) ([]Attempt, error)
	AppendDiscrepancy(ctx context.Context, d Discrepancy) error
	ListDiscrepancies(ctx context.Context) ([]Discrepancy, error)
}
