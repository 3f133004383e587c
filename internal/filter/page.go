package filter

import (
	"slices"

	"actiond/internal/domain"
)

// DefaultHardCap bounds how many matches one paged query scans.
const DefaultHardCap = 500

// Source yields entry copies until the visitor stops.
type Source interface {
	Range(fn func(domain.Entry) bool)
}

// Page is one bounded query result.
// Params: Total counts scanned matches up to the scan bound, not all matches.
// Returns: entries after skip.
type Page struct {
	Entries []domain.Entry
	Total   int
}

// Query describes a paged query.
type Query struct {
	Filters []Filter
	Limit   int
	Skip    int
	HardCap int
	// Order, when set, makes the page a window over the first Bound matches
	// in that order instead of in source iteration order.
	Order func(a, b domain.Entry) int
}

// Bound returns how many matches the query scans before stopping.
// Params: none.
// Returns: max(1, min(limit, hardCap)) + max(0, skip).
func (q Query) Bound() int {
	hardCap := q.HardCap
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	return max(1, min(q.Limit, hardCap)) + max(0, q.Skip)
}

// Run scans source for matches up to the bound and applies skip.
// Params: entry source.
// Returns: page whose Total is a capped approximation.
func (q Query) Run(source Source) Page {
	bound := q.Bound()
	var scanned []domain.Entry
	if q.Order == nil {
		scanned = q.scan(source, bound)
	} else {
		scanned = q.retain(source, bound)
	}

	skip := max(0, q.Skip)
	page := Page{Total: len(scanned)}
	if skip < len(scanned) {
		page.Entries = scanned[skip:]
	} else {
		page.Entries = []domain.Entry{}
	}
	return page
}

// scan stops at the first bound matches in source order.
func (q Query) scan(source Source, bound int) []domain.Entry {
	match := All(q.Filters...)
	scanned := make([]domain.Entry, 0, min(bound, 64))
	source.Range(func(entry domain.Entry) bool {
		if match(entry.Action, entry.Info) {
			scanned = append(scanned, entry)
		}
		return len(scanned) < bound
	})
	return scanned
}

// retain keeps the bound smallest matches under Order, sorted.
func (q Query) retain(source Source, bound int) []domain.Entry {
	match := All(q.Filters...)
	kept := make([]domain.Entry, 0, min(bound, 64))
	source.Range(func(entry domain.Entry) bool {
		if !match(entry.Action, entry.Info) {
			return true
		}
		if len(kept) == bound && q.Order(entry, kept[len(kept)-1]) >= 0 {
			return true
		}
		at, _ := slices.BinarySearchFunc(kept, entry, q.Order)
		kept = slices.Insert(kept, at, entry)
		if len(kept) > bound {
			kept = kept[:bound]
		}
		return true
	})
	return kept
}

// Collect returns every match from source.
func Collect(source Source, filters ...Filter) []domain.Entry {
	match := All(filters...)
	out := make([]domain.Entry, 0)
	source.Range(func(entry domain.Entry) bool {
		if match(entry.Action, entry.Info) {
			out = append(out, entry)
		}
		return true
	})
	return out
}
