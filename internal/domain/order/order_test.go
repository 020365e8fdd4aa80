package order

import (
	"errors"
	"testing"
	"time"
)

func TestPlacementHappyPath(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewPlacement("o-1", "p-1", 1, now)
	if err != nil {
		t.Fatalf("new placement: %v", err)
	}
	for _, next := range []State{StateReserving, StateReserved, StateCharging, StateSettled} {
		if err := p.Transition(next, now); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !p.State.Terminal() {
		t.Fatalf("settled must be terminal")
	}
	if len(p.History) != 5 {
		t.Fatalf("unexpected history %v", p.History)
	}
}

func TestPlacementRejectsInvalidQuantity(t *testing.T) {
	t.Parallel()

	if _, err := NewPlacement("o-1", "p-1", 0, time.Now()); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateStart, StateReserving, true},
		{StateStart, StateRejected, true},
		{StateStart, StateCharging, false},
		{StateReserving, StateCharging, false},
		{StateReserved, StateCompensating, false},
		{StateCharging, StateCompensating, true},
		{StateCharging, StateCompensated, false},
		{StateCompensating, StateCompensated, true},
		{StateCompensating, StateCompensationFailed, true},
		{StateSettled, StateCompensating, false},
		{StateCompensated, StateCompensating, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()

			p := &Placement{State: tt.from}
			err := p.Transition(tt.to, time.Now())
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
			}
			if !tt.ok && p.State != tt.from {
				t.Fatalf("state changed on rejected transition")
			}
		})
	}
}

func TestFailRecordsReason(t *testing.T) {
	t.Parallel()

	p := &Placement{State: StateCharging}
	if err := p.Fail(StateCompensating, "declined: 51", time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if p.Reason != "declined: 51" {
		t.Fatalf("unexpected reason %q", p.Reason)
	}
	if err := p.Fail(StateSettled, "nope", time.Now()); err == nil {
		t.Fatal("expected invalid transition")
	}
	if p.Reason != "declined: 51" {
		t.Fatal("reason must not change on rejected transition")
	}
}
