package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

// Placement tracks a single order request through the reserve, charge and compensate steps.
// It is not persisted; its ID correlates payment attempts and events.
type Placement struct {
	ID        string
	ProductID string
	Quantity  int64
	Amount    decimal.Decimal
	State     State
	// Reason holds why the placement ended anywhere other than Settled.
	Reason    string
	History   []State
	StartedAt time.Time
	UpdatedAt time.Time
}

func NewPlacement(id, productID string, quantity int64, now time.Time) (*Placement, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Placement{
		ID:        id,
		ProductID: productID,
		Quantity:  quantity,
		State:     StateStart,
		History:   []State{StateStart},
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the placement to next if the state machine allows it.
func (p *Placement) Transition(next State, now time.Time) error {
	if !p.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, p.State, next)
	}
	p.State = next
	p.History = append(p.History, next)
	p.UpdatedAt = now
	return nil
}

// Fail records reason and moves to next.
func (p *Placement) Fail(next State, reason string, now time.Time) error {
	if err := p.Transition(next, now); err != nil {
		return err
	}
	p.Reason = reason
	return nil
}
