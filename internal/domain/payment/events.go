package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptRecordedEvent struct {
	AttemptID        string
	OrderID          string
	Amount           decimal.Decimal
	Outcome          Outcome
	BankResponseCode *string
	OccurredAt       time.Time
}

func (AttemptRecordedEvent) EventName() string  { return "payment.attempt_recorded" }
func (e AttemptRecordedEvent) EventKey() string { return e.OrderID }

func NewAttemptRecordedEvent(a Attempt) AttemptRecordedEvent {
	return AttemptRecordedEvent{
		AttemptID:        a.ID,
		OrderID:          a.OrderID,
		Amount:           a.Amount,
		Outcome:          a.Outcome,
		BankResponseCode: a.BankResponseCode,
		OccurredAt:       a.CreatedAt,
	}
}

// LateApprovalEvent is emitted when money was taken for an order that was already compensated.
type LateApprovalEvent struct {
	DiscrepancyID    string
	OrderID          string
	Amount           decimal.Decimal
	BankResponseCode *string
	OccurredAt       time.Time
}

func (LateApprovalEvent) EventName() string  { return "payment.late_approval" }
func (e LateApprovalEvent) EventKey() string { return e.OrderID }

func NewLateApprovalEvent(d Discrepancy) LateApprovalEvent {
	return LateApprovalEvent{
		DiscrepancyID:    d.ID,
		OrderID:          d.OrderID,
		Amount:           d.Amount,
		BankResponseCode: d.BankResponseCode,
		OccurredAt:       d.DetectedAt,
	}
}
