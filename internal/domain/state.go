package domain

import "fmt"

// ActionState is the last outcome recorded for an action.
type ActionState string

const (
	// StateUnknown is the initial state and the state after a failed attempt.
	StateUnknown ActionState = "UNKNOWN"
	// StateWaiting means blocked on an external precondition.
	StateWaiting ActionState = "WAITING"
	// StateThrottled means blocked by rate limiting or by pause.
	StateThrottled ActionState = "THROTTLED"
	// StateQueued means accepted remotely and not started.
	StateQueued ActionState = "QUEUED"
	// StateInflight means running remotely.
	StateInflight ActionState = "INFLIGHT"
	// StateFailed means the remote system reported failure.
	StateFailed ActionState = "FAILED"
	// StateSucceeded is terminal and never re-attempted.
	StateSucceeded ActionState = "SUCCEEDED"
)

var stateOrder = []ActionState{
	StateFailed,
	StateUnknown,
	StateWaiting,
	StateThrottled,
	StateQueued,
	StateInflight,
	StateSucceeded,
}

// States lists every state in display order.
// Params: none.
// Returns: fresh slice ordered by sort priority.
func States() []ActionState {
	return append([]ActionState(nil), stateOrder...)
}

// SortPriority returns display rank; problems sort first.
// Params: none.
// Returns: rank, or len(States()) for unrecognised values.
func (s ActionState) SortPriority() int {
	for index, state := range stateOrder {
		if state == s {
			return index
		}
	}
	return len(stateOrder)
}

// Valid reports whether s is a known state.
func (s ActionState) Valid() bool {
	return s.SortPriority() < len(stateOrder)
}

// ParseState converts text into ActionState.
// Params: case-sensitive state name.
// Returns: state or error for unknown names.
func ParseState(raw string) (ActionState, error) {
	state := ActionState(raw)
	if !state.Valid() {
		return "", fmt.Errorf("unknown action state %q", raw)
	}
	return state, nil
}
