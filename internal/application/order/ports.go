package order

import (
	"context"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type IDGenerator interface {
	NewID() string
}

// Ledger is the stock reservation capability the coordinator drives.
type Ledger interface {
	Reserve(ctx context.Context, productID string, quantity int64) (int64, error)
	Release(ctx context.Context, productID string, quantity int64) (int64, error)
}

// PaymentRecorder keeps the audit trail of charges and reconciles late gateway answers.
type PaymentRecorder interface {
	RecordAttempt(ctx context.Context, orderID, productID string, amount decimal.Decimal, res dompay.Result) (dompay.Attempt, error)
	ReconcileLate(ctx context.Context, attempt dompay.Attempt, late dompay.Result) (*dompay.Discrepancy, error)
}
