package store

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"actiond/internal/domain"
)

// Store keeps every known action and its runtime information in memory.
// Params: lock-free concurrent map keyed by action identity and injected clock.
// Returns: dedup-aware store for ingestion, scheduling and queries.
type Store struct {
	now       func() time.Time
	entries   *xsync.Map[string, *record]
	locations *xsync.Map[domain.LocationKey, domain.SourceLocation]
	counts    map[domain.ActionState]*atomic.Int64
}

type record struct {
	action domain.Action

	mu        sync.Mutex
	info      domain.Information
	locations map[domain.LocationKey]domain.SourceLocation
}

// New creates empty action store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized store.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	counts := make(map[domain.ActionState]*atomic.Int64, len(domain.States()))
	for _, state := range domain.States() {
		counts[state] = new(atomic.Int64)
	}
	return &Store{
		now:       now,
		entries:   xsync.NewMap[string, *record](),
		locations: xsync.NewMap[domain.LocationKey, domain.SourceLocation](),
		counts:    counts,
	}
}

// Accept records one submission of action produced at location.
// Params: action value and its source location.
// Returns: true when a value-equal action was already known.
func (s *Store) Accept(action domain.Action, location domain.SourceLocation) bool {
	identity := domain.Identity(action)
	now := s.now()
	duplicate := false

	s.entries.Compute(identity, func(existing *record, loaded bool) (*record, xsync.ComputeOp) {
		if loaded {
			duplicate = true
			existing.mu.Lock()
			existing.info.LastAdded = now
			existing.locations[location.Key()] = location
			existing.mu.Unlock()
			return existing, xsync.CancelOp
		}
		created := &record{
			action: action,
			info: domain.Information{
				LastAdded:           now,
				LastState:           domain.StateUnknown,
				LastStateTransition: now,
			},
			locations: map[domain.LocationKey]domain.SourceLocation{location.Key(): location},
		}
		s.counts[domain.StateUnknown].Add(1)
		// Runs under the entry lock so a concurrent Purge cannot clean up first.
		action.Accepted()
		return created, xsync.UpdateOp
	})
	s.locations.Store(location.Key(), location)
	return duplicate
}

// Purge removes every entry accepted by match.
// Params: predicate over a point-in-time entry copy.
// Returns: number of entries removed.
func (s *Store) Purge(match func(domain.Entry) bool) int {
	removed := 0
	for _, entry := range s.Snapshot() {
		if match != nil && !match(entry) {
			continue
		}
		var gone *record
		s.entries.Compute(entry.Identity, func(existing *record, loaded bool) (*record, xsync.ComputeOp) {
			if !loaded {
				return existing, xsync.CancelOp
			}
			existing.mu.Lock()
			state := existing.info.LastState
			existing.mu.Unlock()
			s.counts[state].Add(-1)
			gone = existing
			return existing, xsync.DeleteOp
		})
		if gone != nil {
			gone.action.PurgeCleanup()
			removed++
		}
	}
	return removed
}

// Snapshot copies every entry.
// Params: none.
// Returns: entries with sorted location lists; safe to use after store mutates.
func (s *Store) Snapshot() []domain.Entry {
	out := make([]domain.Entry, 0, s.entries.Size())
	s.entries.Range(func(identity string, rec *record) bool {
		out = append(out, domain.Entry{Identity: identity, Action: rec.action, Info: rec.snapshot()})
		return true
	})
	return out
}

// Range visits entry copies until fn returns false.
// Params: visitor over point-in-time copies.
// Returns: none.
func (s *Store) Range(fn func(domain.Entry) bool) {
	s.entries.Range(func(identity string, rec *record) bool {
		return fn(domain.Entry{Identity: identity, Action: rec.action, Info: rec.snapshot()})
	})
}

// Get returns a copy of one entry.
// Params: store identity.
// Returns: entry and presence flag.
func (s *Store) Get(identity string) (domain.Entry, bool) {
	rec, ok := s.entries.Load(identity)
	if !ok {
		return domain.Entry{}, false
	}
	return domain.Entry{Identity: identity, Action: rec.action, Info: rec.snapshot()}, true
}

// MarkChecked stamps lastChecked before an attempt.
// Params: identity and check time.
// Returns: producing locations, or false when the entry was purged meanwhile.
func (s *Store) MarkChecked(identity string, at time.Time) ([]domain.SourceLocation, bool) {
	rec, ok := s.entries.Load(identity)
	if !ok {
		return nil, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.info.LastChecked = at
	return sortedLocations(rec.locations), true
}

// Record stores the outcome of one attempt.
// Params: identity, resulting state, thrown flag and outcome time.
// Returns: previous state, whether it changed, and whether the entry still exists.
func (s *Store) Record(identity string, state domain.ActionState, thrown bool, at time.Time) (domain.ActionState, bool, bool) {
	var (
		previous domain.ActionState
		changed  bool
		found    bool
	)
	s.entries.Compute(identity, func(existing *record, loaded bool) (*record, xsync.ComputeOp) {
		if !loaded {
			return existing, xsync.CancelOp
		}
		found = true
		existing.mu.Lock()
		previous = existing.info.LastState
		existing.info.Thrown = thrown
		if previous != state {
			changed = true
			existing.info.LastState = state
			existing.info.LastStateTransition = at
		}
		existing.mu.Unlock()
		if changed {
			s.counts[previous].Add(-1)
			s.counts[state].Add(1)
		}
		return existing, xsync.CancelOp
	})
	return previous, changed, found
}

// Count returns number of entries currently in state.
func (s *Store) Count(state domain.ActionState) int64 {
	counter, ok := s.counts[state]
	if !ok {
		return 0
	}
	return counter.Load()
}

// Len returns number of distinct actions.
func (s *Store) Len() int {
	return s.entries.Size()
}

// Locations lists every distinct source location ever accepted.
// Params: none.
// Returns: locations in ascending order.
func (s *Store) Locations() []domain.SourceLocation {
	out := make([]domain.SourceLocation, 0, s.locations.Size())
	s.locations.Range(func(_ domain.LocationKey, location domain.SourceLocation) bool {
		out = append(out, location)
		return true
	})
	slices.SortFunc(out, domain.SourceLocation.Compare)
	return out
}

func (r *record) snapshot() domain.Information {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.info
	info.Locations = sortedLocations(r.locations)
	return info
}

func sortedLocations(set map[domain.LocationKey]domain.SourceLocation) []domain.SourceLocation {
	out := make([]domain.SourceLocation, 0, len(set))
	for _, location := range set {
		out = append(out, location)
	}
	slices.SortFunc(out, domain.SourceLocation.Compare)
	return out
}
