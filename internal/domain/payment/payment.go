package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("payment: amount must be zero or greater")

type Outcome string

const (
	OutcomeApproved         Outcome = "approved"
	OutcomeDeclined         Outcome = "declined"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Charge is what the gateway is asked to collect.
type Charge struct {
	OrderID string
	Amount  decimal.Decimal
}

// Result is the gateway's verdict. BankResponseCode is whatever opaque code the processor
// returned, nil when there was none.
type Result struct {
	Outcome          Outcome
	BankResponseCode *string
	Reason           string
}

func (r Result) Approved() bool { return r.Outcome == OutcomeApproved }

func Approved(code string) Result {
	return Result{Outcome: OutcomeApproved, BankResponseCode: codePtr(code)}
}

func Declined(code, reason string) Result {
	return Result{Outcome: OutcomeDeclined, BankResponseCode: codePtr(code), Reason: reason}
}

func TransportFailure(reason string) Result {
	return Result{Outcome: OutcomeTransportFailure, Reason: reason}
}

func codePtr(code string) *string {
	if code == "" {
		return nil
	}
	return &code
}

// Attempt is the append-only audit record of one charge.
type Attempt struct {
	ID               string
	OrderID          string
	ProductID        string
	Amount           decimal.Decimal
	BankResponseCode *string
	Outcome          Outcome
	Reason           string
	CreatedAt        time.Time
}

func NewAttempt(id, orderID, productID string, amount decimal.Decimal, res Result, now time.Time) (Attempt, error) {
	if amount.IsNegative() {
		return Attempt{}, ErrInvalidAmount
	}
	return Attempt{
		ID:               id,
		OrderID:          orderID,
		ProductID:        productID,
		Amount:           amount,
		BankResponseCode: res.BankResponseCode,
		Outcome:          res.Outcome,
		Reason:           res.Reason,
		CreatedAt:        now,
	}, nil
}

// Discrepancy records a gateway answer that arrived after the order had already been
// resolved without it. It needs manual reconciliation.
type Discrepancy struct {
	ID               string
	OrderID          string
	ProductID        string
	Amount           decimal.Decimal
	BankResponseCode *string
	LateOutcome      Outcome
	// RecordedOutcome is what the attempt record says happened.
	RecordedOutcome Outcome
	DetectedAt      time.Time
}
