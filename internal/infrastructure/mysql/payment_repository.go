package mysql

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) AppendAttempt(ctx context.Context, a domain.Attempt) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO payment_attempts (id, order_id, product_id, amount, bank_response_code, outcome, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrderID, a.ProductID, a.Amount.String(), nullString(a.BankResponseCode), string(a.Outcome), a.Reason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (r *PaymentRepository) ListAttempts(ctx context.Context, orderID string) ([]domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, order_id, product_id, CAST(amount AS CHAR), bank_response_code, outcome, reason, created_at
FROM payment_attempts
WHERE ? = '' OR order_id = ?
ORDER BY created_at, id`, orderID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		var (
			a               domain.Attempt
			amount, outcome string
			code            sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ProductID, &amount, &code, &outcome, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		a.BankResponseCode = stringPtr(code)
		a.Outcome = domain.Outcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) AppendDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO payment_discrepancies (id, order_id, product_id, amount, bank_response_code, late_outcome, recorded_outcome, detected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OrderID, d.ProductID, d.Amount.String(), nullString(d.BankResponseCode), string(d.LateOutcome), string(d.RecordedOutcome), d.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment discrepancy: %w", err)
	}
	return nil
}

func (r *PaymentRepository) ListDiscrepancies(ctx context.Context) ([]domain.Discrepancy, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, order_id, product_id, CAST(amount AS CHAR), bank_response_code, late_outcome, recorded_outcome, detected_at
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
			code                   sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &amount, &code, &late, &recorded, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan payment discrepancy: %w", err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		d.BankResponseCode = stringPtr(code)
		d.LateOutcome, d.RecordedOutcome = domain.Outcome(late), domain.Outcome(recorded)
		out = append(out, d)
	}
	return out, rows.Err()
}
