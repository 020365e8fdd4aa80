package postgres

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) AppendAttempt(ctx context.Context, a domain.Attempt) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO payment_attempts (id, order_id, product_id, amount, bank_response_code, outcome, reason, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		a.ID, a.OrderID, a.ProductID, a.Amount.String(), a.BankResponseCode, string(a.Outcome), a.Reason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

// ListAttempts returns attempts for orderID, or every attempt when orderID is empty.
func (r *PaymentRepository) ListAttempts(ctx context.Context, orderID string) ([]domain.Attempt, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, order_id, product_id, amount::text, bank_response_code, outcome, reason, created_at
FROM payment_attempts
WHERE $1 = '' OR order_id = $1
ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		var (
			a       domain.Attempt
			amount  string
			outcome string
		)
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ProductID, &amount, &a.BankResponseCode, &outcome, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		if a.Amount, err = parseMoney(amount); err != nil {
			return nil, err
		}
		a.Outcome = domain.Outcome(outcome)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	return out, nil
}

func (r *PaymentRepository) AppendDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO payment_discrepancies (id, order_id, product_id, amount, bank_response_code, late_outcome, recorded_outcome, detected_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		d.ID, d.OrderID, d.ProductID, d.Amount.String(), d.BankResponseCode, string(d.LateOutcome), string(d.RecordedOutcome), d.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment discrepancy: %w", err)
	}
	return nil
}

func (r *PaymentRepository) ListDiscrepancies(ctx context.Context) ([]domain.Discrepancy, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, order_id, product_id, amount::text, bank_response_code, late_outcome, recorded_outcome, detected_at
FROM payment_discrepancies
ORDER BY detected_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list payment discrepancies: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Discrepancy, 0)
	for rows.Next() {
		var (
			d                      domain.Discrepancy
			amount, late, recorded string
		)
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &amount, &d.BankResponseCode, &late, &recorded, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan payment discrepancy: %w", err)
		}
		if d.Amount, err = parseMoney(amount); err != nil {
			return nil, err
		}
		d.LateOutcome, d.RecordedOutcome = domain.Outcome(late), domain.Outcome(recorded)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payment discrepancies: %w", err)
	}
	return out, nil
}
