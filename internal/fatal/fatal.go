package fatal

import "errors"

// Error marks failures after which the process state is no longer trusted.
// Params: wrapped root cause.
// Returns: typed fatal error marker.
type Error struct {
	Err error
}

// Error returns wrapped error message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return "fatal error"
	}
	return "fatal: " + e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Fatal marks error as unrecoverable.
// Params: none.
// Returns: true.
func (Error) Fatal() bool {
	return true
}

// Mark wraps error with fatal marker.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether error chain carries the fatal marker.
// Params: candidate error.
// Returns: true when the scheduler must stop instead of recording a retry.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Fatal() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Fatal()
}
