package pause

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v4"

	"actiond/internal/domain"
)

// Registry is the set of paused source locations.
type Registry struct {
	paused *xsync.Map[domain.LocationKey, domain.SourceLocation]
}

// New creates empty pause registry.
func New() *Registry {
	return &Registry{paused: xsync.NewMap[domain.LocationKey, domain.SourceLocation]()}
}

// Pause suppresses execution of actions produced at location.
func (r *Registry) Pause(location domain.SourceLocation) {
	r.paused.Store(location.Key(), location)
}

// Resume lifts a pause; unknown locations are ignored.
func (r *Registry) Resume(location domain.SourceLocation) {
	r.paused.Delete(location.Key())
}

// IsPaused reports whether location is paused.
func (r *Registry) IsPaused(location domain.SourceLocation) bool {
	_, ok := r.paused.Load(location.Key())
	return ok
}

// AnyPaused reports whether any of locations is paused.
// Params: producing locations of one action.
// Returns: true on first paused match.
func (r *Registry) AnyPaused(locations []domain.SourceLocation) bool {
	if r.paused.Size() == 0 {
		return false
	}
	for _, location := range locations {
		if r.IsPaused(location) {
			return true
		}
	}
	return false
}

// Pauses lists paused locations in ascending order.
func (r *Registry) Pauses() []domain.SourceLocation {
	out := make([]domain.SourceLocation, 0, r.paused.Size())
	r.paused.Range(func(_ domain.LocationKey, location domain.SourceLocation) bool {
		out = append(out, location)
		return true
	})
	slices.SortFunc(out, domain.SourceLocation.Compare)
	return out
}
