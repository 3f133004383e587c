package domain

import "time"

// Information is the runtime bookkeeping kept for one distinct action.
// Params: timestamps, last state, producing locations and throw flag.
// Returns: point-in-time copy when read through the store.
type Information struct {
	LastAdded           time.Time
	LastChecked         time.Time
	LastState           ActionState
	LastStateTransition time.Time
	Locations           []SourceLocation
	Thrown              bool
}

// Entry pairs an action with a copy of its information.
type Entry struct {
	Identity string
	Action   Action
	Info     Information
}
