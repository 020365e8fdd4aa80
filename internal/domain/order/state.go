package order

type State string

const (
	StateStart     State = "start"
	StateReserving State = "reserving"
	StateReserved  State = "reserved"
	StateCharging  State = "charging"
	StateSettled   State = "settled"
	// StateRejected ends a placement before any payment: unknown product or not enough stock.
	StateRejected     State = "rejected"
	StateCompensating State = "compensating"
	StateCompensated  State = "compensated"
	// StateCompensationFailed means the reservation could not be released after a failed charge.
	StateCompensationFailed State = "compensation_failed"
)

var transitions = map[State][]State{
	StateStart:        {StateReserving, StateRejected},
	StateReserving:    {StateReserved, StateRejected},
	StateReserved:     {StateCharging},
	StateCharging:     {StateSettled, StateCompensating},
	StateCompensating: {StateCompensated, StateCompensationFailed},
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s State) String() string { return string(s) }
