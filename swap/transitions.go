package swap

import "fmt"

// transitionKey identifies one (kind, from-state) pair in the table below.
type transitionKey struct {
	kind Kind
	from State
}

// validTransitions enumerates every permitted state transition, per kind.
// A (kind, from) pair absent from this map has no valid outgoing
// transition except the universal self-loop checked in Validate.
var validTransitions = map[transitionKey][]State{
	// Send
	{KindSend, StateCreated}:        {StatePending, StateTimedOut, StateFailed},
	{KindSend, StatePending}:        {StatePending, StateComplete, StateRefundPending, StateFailed},
	{KindSend, StateRefundPending}:  {StateFailed},

	// Receive
	{KindReceive, StateCreated}: {StateCreated, StatePending, StateFailed},
	{KindReceive, StatePending}: {StatePending, StateComplete, StateWaitingFeeAcceptance, StateFailed},
	{KindReceive, StateWaitingFeeAcceptance}: {StatePending},

	// Chain (symmetric between directions)
	{KindChain, StateCreated}:       {StatePending, StateFailed},
	{KindChain, StatePending}:       {StatePending, StateComplete, StateRefundPending, StateWaitingFeeAcceptance, StateFailed},
	{KindChain, StateWaitingFeeAcceptance}: {StatePending},
	{KindChain, StateRefundPending}: {StateFailed},
}

// ErrInvalidTransition is returned by Validate when a proposed state change
// is not in the table for its kind.
type ErrInvalidTransition struct {
	Kind Kind
	From State
	To   State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("swap: invalid %s transition %s -> %s", e.Kind, e.From, e.To)
}

// Validate reports whether (kind, from -> to) is a permitted transition.
// Terminal states (Complete, Failed) never have a valid outgoing
// transition; TimedOut is reachable only from Created and is itself
// terminal in practice (no handler drives a TimedOut swap further).
func Validate(kind Kind, from, to State) error {
	if from.Terminal() {
		return &ErrInvalidTransition{Kind: kind, From: from, To: to}
	}
	if from == StateTimedOut {
		return &ErrInvalidTransition{Kind: kind, From: from, To: to}
	}
	for _, allowed := range validTransitions[transitionKey{kind, from}] {
		if allowed == to {
			return nil
		}
	}
	return &ErrInvalidTransition{Kind: kind, From: from, To: to}
}
