// Package txstate holds the authoritative transaction lifecycle table. Every
// mutating path (manual endpoints, drop/replace, the auto-advance loop)
// validates against this table; nothing writes the state column directly.
package txstate

import "fmt"

type State string

const (
	Submitted            State = "SUBMITTED"
	PendingSignature     State = "PENDING_SIGNATURE"
	PendingAuthorization State = "PENDING_AUTHORIZATION"
	Queued               State = "QUEUED"
	Broadcasting         State = "BROADCASTING"
	Confirming           State = "CONFIRMING"
	Completed            State = "COMPLETED"
	Failed               State = "FAILED"
	Rejected             State = "REJECTED"
	Cancelled            State = "CANCELLED"
	Timeout              State = "TIMEOUT"
)

var terminal = map[State]struct{}{
	Completed: {},
	Failed:    {},
	Rejected:  {},
	Cancelled: {},
	Timeout:   {},
}

// transitions is the single adjacency map consulted by both the manual and
// the scheduled paths, so the two can never diverge.
var transitions = map[State]map[State]struct{}{
	Submitted: {
		PendingSignature:     {},
		PendingAuthorization: {},
		Queued:               {},
		Failed:               {},
		Rejected:             {},
		Cancelled:            {},
	},
	PendingSignature: {
		PendingAuthorization: {},
		Queued:               {},
		Failed:               {},
		Rejected:             {},
		Cancelled:            {},
	},
	PendingAuthorization: {
		Queued:    {},
		Failed:    {},
		Rejected:  {},
		Cancelled: {},
	},
	Queued: {
		Broadcasting: {},
		Failed:       {},
		Cancelled:    {},
		Timeout:      {},
	},
	Broadcasting: {
		Confirming: {},
		Completed:  {},
		Failed:     {},
		Timeout:    {},
	},
	Confirming: {
		Completed: {},
		Failed:    {},
		Timeout:   {},
	},
}

// autoForward maps each non-terminal state to its deterministic next step for
// the auto-advance loop.
var autoForward = map[State]State{
	Submitted:            PendingAuthorization,
	PendingSignature:     PendingAuthorization,
	PendingAuthorization: Queued,
	Queued:               Broadcasting,
	Broadcasting:         Confirming,
	Confirming:           Completed,
}

type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func Valid(s State) bool {
	if _, ok := terminal[s]; ok {
		return true
	}
	_, ok := transitions[s]
	return ok
}

func IsTerminal(s State) bool {
	_, ok := terminal[s]
	return ok
}

// IsSuccess reports whether a terminal state settles funds rather than
// releasing them.
func IsSuccess(s State) bool {
	return s == Completed
}

// Validate returns an InvalidTransitionError unless from→to is an allowed
// edge. The terminal check runs first and unconditionally: no edge leaves a
// terminal state, whatever the table says.
func Validate(from, to State) error {
	if IsTerminal(from) {
		return &InvalidTransitionError{From: from, To: to}
	}
	targets, ok := transitions[from]
	if !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	if _, ok := targets[to]; !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Next returns the scheduled forward step for a state. ok is false for
// terminal states.
func Next(from State) (State, bool) {
	next, ok := autoForward[from]
	return next, ok
}
