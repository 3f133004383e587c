package domain

import (
	"cmp"
	"fmt"
	"time"
)

// SourceLocation identifies where in a rule set an action originated.
type SourceLocation struct {
	File   string    `json:"file"`
	Line   int       `json:"line"`
	Column int       `json:"column"`
	Time   time.Time `json:"time"`
}

// LocationKey is the comparable form of SourceLocation used as a map key.
type LocationKey struct {
	File   string
	Line   int
	Column int
	Nanos  int64
}

// Key returns the comparable map key for the location.
func (l SourceLocation) Key() LocationKey {
	var nanos int64
	if !l.Time.IsZero() {
		nanos = l.Time.UnixNano()
	}
	return LocationKey{File: l.File, Line: l.Line, Column: l.Column, Nanos: nanos}
}

// Compare orders locations by file, line, column, then time.
// Params: other location.
// Returns: -1, 0 or +1.
func (l SourceLocation) Compare(other SourceLocation) int {
	if c := cmp.Compare(l.File, other.File); c != 0 {
		return c
	}
	if c := cmp.Compare(l.Line, other.Line); c != 0 {
		return c
	}
	if c := cmp.Compare(l.Column, other.Column); c != 0 {
		return c
	}
	return l.Time.Compare(other.Time)
}

// String renders file:line:column.
func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}
