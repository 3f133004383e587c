package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"

	"actiond/internal/domain"
)

// Property extracts zero or more comparable values per entry.
// Params: display name, extractor, ordering and label renderer.
// Returns: grouping axis for summaries and crosstabs.
type Property[T comparable] struct {
	Name    string
	Extract func(domain.Entry) []T
	Compare func(a, b T) int
	Label   func(T) string
}

// Row is one value of a property summary.
type Row struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summary groups entries by one property.
type Summary struct {
	Property string `json:"property"`
	Rows     []Row  `json:"rows"`
}

// StateProperty groups by last state in display order.
func StateProperty() Property[domain.ActionState] {
	return Property[domain.ActionState]{
		Name: "state",
		Extract: func(entry domain.Entry) []domain.ActionState {
			return []domain.ActionState{entry.Info.LastState}
		},
		Compare: func(a, b domain.ActionState) int {
			return cmp.Compare(a.SortPriority(), b.SortPriority())
		},
		Label: func(state domain.ActionState) string { return string(state) },
	}
}

// TypeProperty groups by action type.
func TypeProperty() Property[string] {
	return Property[string]{
		Name:    "type",
		Extract: func(entry domain.Entry) []string { return []string{entry.Action.Type()} },
		Compare: cmp.Compare[string],
		Label:   func(value string) string { return value },
	}
}

// SourceFileProperty groups by every distinct producing file.
func SourceFileProperty() Property[string] {
	return Property[string]{
		Name: "sourcefile",
		Extract: func(entry domain.Entry) []string {
			return lo.Uniq(lo.Map(entry.Info.Locations, func(location domain.SourceLocation, _ int) string {
				return location.File
			}))
		},
		Compare: cmp.Compare[string],
		Label:   func(value string) string { return value },
	}
}

// SourceLocationProperty groups by full source location.
func SourceLocationProperty() Property[domain.LocationKey] {
	return Property[domain.LocationKey]{
		Name: "sourcelocation",
		Extract: func(entry domain.Entry) []domain.LocationKey {
			return lo.Map(entry.Info.Locations, func(location domain.SourceLocation, _ int) domain.LocationKey {
				return location.Key()
			})
		},
		Compare: func(a, b domain.LocationKey) int {
			return locationOf(a).Compare(locationOf(b))
		},
		Label: func(key domain.LocationKey) string {
			location := locationOf(key)
			if location.Time.IsZero() {
				return location.String()
			}
			return location.String() + "@" + location.Time.Format(time.RFC3339Nano)
		},
	}
}

func locationOf(key domain.LocationKey) domain.SourceLocation {
	location := domain.SourceLocation{File: key.File, Line: key.Line, Column: key.Column}
	if key.Nanos != 0 {
		location.Time = time.Unix(0, key.Nanos).UTC()
	}
	return location
}

// values returns every extracted value across entries.
func (p Property[T]) values(entries []domain.Entry) []T {
	return lo.FlatMap(entries, func(entry domain.Entry, _ int) []T { return p.Extract(entry) })
}

// distinct returns sorted distinct values.
func (p Property[T]) distinct(entries []domain.Entry) []T {
	out := lo.Uniq(p.values(entries))
	slices.SortFunc(out, p.Compare)
	return out
}

// Summarize counts entries per property value.
// Params: property and materialized entries.
// Returns: rows sorted by property order.
func Summarize[T comparable](p Property[T], entries []domain.Entry) Summary {
	counts := lo.CountValues(p.values(entries))
	keys := lo.Keys(counts)
	slices.SortFunc(keys, p.Compare)

	summary := Summary{Property: p.Name, Rows: make([]Row, 0, len(keys))}
	for _, key := range keys {
		summary.Rows = append(summary.Rows, Row{Value: p.Label(key), Count: counts[key]})
	}
	return summary
}
