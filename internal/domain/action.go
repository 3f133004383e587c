package domain

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

// Services carries collaborators handed to Action.Perform.
// Params: outbound HTTP client, logger and time source.
// Returns: execution environment for one attempt.
type Services struct {
	HTTP   *http.Client
	Logger *slog.Logger
	Now    func() time.Time
}

// Action is one idempotent unit of work produced by rule evaluation.
// Params: implemented per action kind with value identity.
// Returns: state-producing execution contract consumed by the engine.
type Action interface {
	// Type returns the kind tag used for filtering and grouping.
	Type() string
	// Key returns value identity within the kind. Equal parameters yield equal keys.
	Key() string
	// Priority orders evaluation; lower runs first.
	Priority() int
	// RetryMinutes is the minimum interval between attempts.
	RetryMinutes() int64
	// ExternalTimestamp reports an optional timestamp owned by the remote system.
	ExternalTimestamp() (time.Time, bool)
	// Search reports whether the action's text matches pattern.
	Search(pattern *regexp.Regexp) bool
	// Accepted is called once when the engine first sees the action.
	Accepted()
	// PurgeCleanup is called once when the engine forgets the action.
	PurgeCleanup()
	// Perform runs one attempt against the remote system.
	Perform(ctx context.Context, services Services) (ActionState, error)
	// Describe returns the structured form embedded in query rows.
	Describe() map[string]any
}

// Identity builds store identity for action.
// Params: action value.
// Returns: type-qualified key; equal for value-equal actions.
func Identity(action Action) string {
	return action.Type() + "\x00" + action.Key()
}
