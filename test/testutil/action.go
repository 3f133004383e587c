package testutil

import (
	"context"
	"regexp"
	"sync/atomic"
	"time"

	"actiond/internal/domain"
)

// Action is a scripted action for engine tests.
// Params: Name defines identity; Outcome scripts Perform.
// Returns: domain.Action implementation with hook counters.
type Action struct {
	Kind     string
	Name     string
	Prio     int
	Retry    int64
	External time.Time
	Outcome  func(ctx context.Context) (domain.ActionState, error)

	AcceptedCalls atomic.Int64
	PurgedCalls   atomic.Int64
	PerformCalls  atomic.Int64
	// CleanedEarly is set when PurgeCleanup ran before Accepted.
	CleanedEarly atomic.Bool
}

// NewAction creates action with kind "test" that succeeds on first attempt.
// Params: identity name.
// Returns: scripted action.
func NewAction(name string) *Action {
	return &Action{Kind: "test", Name: name}
}

// Type returns action kind.
func (a *Action) Type() string { return a.Kind }

// Key returns value identity.
func (a *Action) Key() string { return a.Name }

// Priority returns evaluation priority.
func (a *Action) Priority() int { return a.Prio }

// RetryMinutes returns retry interval.
func (a *Action) RetryMinutes() int64 { return a.Retry }

// ExternalTimestamp returns External when set.
func (a *Action) ExternalTimestamp() (time.Time, bool) {
	return a.External, !a.External.IsZero()
}

// Search matches pattern against Name.
func (a *Action) Search(pattern *regexp.Regexp) bool { return pattern.MatchString(a.Name) }

// Accepted counts first-sight hook calls.
func (a *Action) Accepted() { a.AcceptedCalls.Add(1) }

// PurgeCleanup counts cleanup hook calls.
func (a *Action) PurgeCleanup() {
	if a.AcceptedCalls.Load() == 0 {
		a.CleanedEarly.Store(true)
	}
	a.PurgedCalls.Add(1)
}

// Perform runs Outcome or reports success.
func (a *Action) Perform(ctx context.Context, _ domain.Services) (domain.ActionState, error) {
	a.PerformCalls.Add(1)
	if a.Outcome == nil {
		return domain.StateSucceeded, nil
	}
	return a.Outcome(ctx)
}

// Describe returns name and kind.
func (a *Action) Describe() map[string]any {
	return map[string]any{"name": a.Name, "kind": a.Kind}
}

// Location builds a source location at line 1 of file.
func Location(file string, line int) domain.SourceLocation {
	return domain.SourceLocation{File: file, Line: line, Column: 1}
}
