package filter

import (
	"regexp"
	"slices"
	"time"

	"actiond/internal/domain"
)

// Filter is a predicate over one action and its information.
type Filter func(action domain.Action, info domain.Information) bool

// Negate returns logical NOT of f.
func (f Filter) Negate() Filter {
	return func(action domain.Action, info domain.Information) bool {
		return !f(action, info)
	}
}

// Range is a half-open time interval [Start, End); zero bounds are open.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts lies inside the interval.
// Params: candidate timestamp.
// Returns: true when Start <= ts < End with absent bounds ignored.
func (r Range) Contains(ts time.Time) bool {
	if !r.Start.IsZero() && ts.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !ts.Before(r.End) {
		return false
	}
	return true
}

// LocationPredicate matches a source location exactly on the set fields.
// Params: required file; nil Line/Column/Time mean "any".
// Returns: predicate used by FromLocations.
type LocationPredicate struct {
	File   string
	Line   *int
	Column *int
	Time   *time.Time
}

// Match reports whether location satisfies every set field.
func (p LocationPredicate) Match(location domain.SourceLocation) bool {
	if p.File != location.File {
		return false
	}
	if p.Line != nil && *p.Line != location.Line {
		return false
	}
	if p.Column != nil && *p.Column != location.Column {
		return false
	}
	if p.Time != nil && !p.Time.Equal(location.Time) {
		return false
	}
	return true
}

// All combines filters with logical AND; no filters accept everything.
func All(filters ...Filter) Filter {
	return func(action domain.Action, info domain.Information) bool {
		for _, f := range filters {
			if f != nil && !f(action, info) {
				return false
			}
		}
		return true
	}
}

// Match applies filters to a store entry.
func Match(entry domain.Entry, filters ...Filter) bool {
	return All(filters...)(entry.Action, entry.Info)
}

// IsState matches entries whose last state is one of states.
func IsState(states ...domain.ActionState) Filter {
	return func(_ domain.Action, info domain.Information) bool {
		return slices.Contains(states, info.LastState)
	}
}

// Added matches lastAdded within r.
func Added(r Range) Filter {
	return func(_ domain.Action, info domain.Information) bool {
		return r.Contains(info.LastAdded)
	}
}

// Checked matches lastChecked within r.
func Checked(r Range) Filter {
	return func(_ domain.Action, info domain.Information) bool {
		return r.Contains(info.LastChecked)
	}
}

// StatusChanged matches lastStateTransition within r.
func StatusChanged(r Range) Filter {
	return func(_ domain.Action, info domain.Information) bool {
		return r.Contains(info.LastStateTransition)
	}
}

// External matches the action's external timestamp within r.
// Actions without an external timestamp never match.
func External(r Range) Filter {
	return func(action domain.Action, _ domain.Information) bool {
		ts, ok := action.ExternalTimestamp()
		return ok && r.Contains(ts)
	}
}

// FromFile matches entries produced in any of files.
func FromFile(files ...string) Filter {
	return func(_ domain.Action, info domain.Information) bool {
		for _, location := range info.Locations {
			if slices.Contains(files, location.File) {
				return true
			}
		}
		return false
	}
}

// FromLocations matches entries with any location satisfying any predicate.
func FromLocations(predicates ...LocationPredicate) Filter {
	return func(_ domain.Action, info domain.Information) bool {
		for _, location := range info.Locations {
			for _, predicate := range predicates {
				if predicate.Match(location) {
					return true
				}
			}
		}
		return false
	}
}

// Type matches entries whose action type is one of names.
func Type(names ...string) Filter {
	return func(action domain.Action, _ domain.Information) bool {
		return slices.Contains(names, action.Type())
	}
}

// TextSearch delegates to the action's own search.
func TextSearch(pattern *regexp.Regexp) Filter {
	return func(action domain.Action, _ domain.Information) bool {
		return action.Search(pattern)
	}
}
