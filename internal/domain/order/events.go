package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettledEvent is emitted when the charge was approved and the reservation stands.
type SettledEvent struct {
	OrderID    string
	ProductID  string
	Quantity   int64
	Amount     decimal.Decimal
	OccurredAt time.Time
}

func (SettledEvent) EventName() string  { return "order.settled" }
func (e SettledEvent) EventKey() string { return e.OrderID }

func NewSettledEvent(p *Placement) SettledEvent {
	return SettledEvent{
		OrderID:    p.ID,
		ProductID:  p.ProductID,
		Quantity:   p.Quantity,
		Amount:     p.Amount,
		OccurredAt: p.UpdatedAt,
	}
}

// CompensatedEvent is emitted after a failed charge once the reserved stock is back.
type CompensatedEvent struct {
	OrderID    string
	ProductID  string
	Quantity   int64
	Reason     string
	OccurredAt time.Time
}

func (CompensatedEvent) EventName() string  { return "order.compensated" }
func (e CompensatedEvent) EventKey() string { return e.OrderID }

func NewCompensatedEvent(p *Placement) CompensatedEvent {
	return CompensatedEvent{
		OrderID:    p.ID,
		ProductID:  p.ProductID,
		Quantity:   p.Quantity,
		Reason:     p.Reason,
		OccurredAt: p.UpdatedAt,
	}
}

// CompensationFailedEvent signals stock that is reserved with no order behind it.
type CompensationFailedEvent struct {
	OrderID       string
	ProductID     string
	Quantity      int64
	PaymentReason string
	ReleaseError  string
	OccurredAt    time.Time
}

func (CompensationFailedEvent) EventName() string  { return "order.compensation_failed" }
func (e CompensationFailedEvent) EventKey() string { return e.OrderID }

func NewCompensationFailedEvent(p *Placement, releaseErr error) CompensationFailedEvent {
	return CompensationFailedEvent{
		OrderID:       p.ID,
		ProductID:     p.ProductID,
		Quantity:      p.Quantity,
		PaymentReason: p.Reason,
		ReleaseError:  releaseErr.Error(),
		OccurredAt:    p.UpdatedAt,
	}
}
