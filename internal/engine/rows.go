package engine

import (
	"cmp"
	"slices"
	"time"

	"actiond/internal/domain"
)

// Linker renders a source location into a link; "" omits it.
type Linker interface {
	Link(location domain.SourceLocation) string
}

// Row is the query projection of one action.
type Row struct {
	ID                  string             `json:"id"`
	Type                string             `json:"type"`
	State               domain.ActionState `json:"state"`
	Thrown              bool               `json:"thrown"`
	LastAdded           *time.Time         `json:"lastAdded,omitempty"`
	LastChecked         *time.Time         `json:"lastChecked,omitempty"`
	LastStateTransition *time.Time         `json:"lastStateTransition,omitempty"`
	External            *time.Time         `json:"external,omitempty"`
	Locations           []LocationRow      `json:"locations"`
	Action              map[string]any     `json:"action"`
}

// LocationRow is one producing location with optional link.
type LocationRow struct {
	domain.SourceLocation
	URL string `json:"url,omitempty"`
}

// PageResult is one bounded query answer.
type PageResult struct {
	Rows  []Row `json:"rows"`
	Total int   `json:"total"`
}

func project(entries []domain.Entry, linker Linker) []Row {
	rows := make([]Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, projectEntry(entry, linker))
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := cmp.Compare(a.State.SortPriority(), b.State.SortPriority()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rows
}

// compareEntries orders entries the way query rows are listed.
func compareEntries(a, b domain.Entry) int {
	if c := cmp.Compare(a.Info.LastState.SortPriority(), b.Info.LastState.SortPriority()); c != 0 {
		return c
	}
	return cmp.Compare(rowID(a.Action), rowID(b.Action))
}

func rowID(action domain.Action) string {
	return action.Type() + ":" + action.Key()
}

func projectEntry(entry domain.Entry, linker Linker) Row {
	row := Row{
		ID:                  rowID(entry.Action),
		Type:                entry.Action.Type(),
		State:               entry.Info.LastState,
		Thrown:              entry.Info.Thrown,
		LastAdded:           optionalTime(entry.Info.LastAdded),
		LastChecked:         optionalTime(entry.Info.LastChecked),
		LastStateTransition: optionalTime(entry.Info.LastStateTransition),
		Locations:           make([]LocationRow, 0, len(entry.Info.Locations)),
		Action:              entry.Action.Describe(),
	}
	if ts, ok := entry.Action.ExternalTimestamp(); ok {
		row.External = optionalTime(ts)
	}
	for _, location := range entry.Info.Locations {
		locationRow := LocationRow{SourceLocation: location}
		if linker != nil {
			locationRow.URL = linker.Link(location)
		}
		row.Locations = append(row.Locations, locationRow)
	}
	return row
}

func optionalTime(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	return &ts
}
