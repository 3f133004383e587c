package analytics

import (
	"testing"
	"time"

	"actiond/internal/domain"
	"actiond/test/testutil"
)

var base = time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)

func makeEntry(name, kind string, state domain.ActionState, added time.Time, files ...string) domain.Entry {
	action := testutil.NewAction(name)
	action.Kind = kind
	locations := make([]domain.SourceLocation, 0, len(files))
	for index, file := range files {
		locations = append(locations, domain.SourceLocation{File: file, Line: index + 1, Column: 1})
	}
	return domain.Entry{
		Identity: domain.Identity(action),
		Action:   action,
		Info:     domain.Information{LastAdded: added, LastState: state, Locations: locations},
	}
}

func TestSummarizeOrdersByProperty(t *testing.T) {
	t.Parallel()

	entries := []domain.Entry{
		makeEntry("a", "x", domain.StateSucceeded, base, "b.rules"),
		makeEntry("b", "x", domain.StateFailed, base, "a.rules", "b.rules"),
		makeEntry("c", "y", domain.StateFailed, base, "a.rules"),
	}
	states := Summarize(StateProperty(), entries)
	if len(states.Rows) != 2 || states.Rows[0].Value != "FAILED" || states.Rows[0].Count != 2 {
		t.Fatalf("unexpected state summary %+v", states.Rows)
	}
	files := Summarize(SourceFileProperty(), entries)
	if len(files.Rows) != 2 || files.Rows[0] != (Row{Value: "a.rules", Count: 2}) || files.Rows[1].Count != 2 {
		t.Fatalf("unexpected file summary %+v", files.Rows)
	}
}

func TestSourceLocationPropertyKeepsTime(t *testing.T) {
	t.Parallel()

	untimed := domain.SourceLocation{File: "a.rules", Line: 3, Column: 1}
	earlier := untimed
	earlier.Time = base
	later := untimed
	later.Time = base.Add(time.Hour)

	entry := makeEntry("a", "x", domain.StateQueued, base)
	entry.Info.Locations = []domain.SourceLocation{later, untimed, earlier}
	rows := Summarize(SourceLocationProperty(), []domain.Entry{entry}).Rows
	want := []string{
		"a.rules:3:1",
		"a.rules:3:1@2026-02-24T12:00:00Z",
		"a.rules:3:1@2026-02-24T13:00:00Z",
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), rows)
	}
	for i, row := range rows {
		if row.Value != want[i] || row.Count != 1 {
			t.Fatalf("row %d: expected %s, got %+v", i, want[i], row)
		}
	}
}

func TestHistogramBucketCount(t *testing.T) {
	t.Parallel()

	entries := []domain.Entry{
		makeEntry("a", "x", domain.StateQueued, base),
		makeEntry("b", "x", domain.StateQueued, base.Add(20*time.Minute)),
		makeEntry("c", "x", domain.StateQueued, base.Add(100*time.Minute)),
	}
	h, ok := AddedBin(time.Minute).Histogram(10, entries)
	if !ok {
		t.Fatalf("expected histogram")
	}
	if len(h.Counts) != 10 || len(h.Labels) != 11 {
		t.Fatalf("expected 10 counts and 11 labels, got %d/%d", len(h.Counts), len(h.Labels))
	}
	if h.Counts[0] != 1 || h.Counts[2] != 1 || h.Counts[9] != 1 {
		t.Fatalf("unexpected distribution %v", h.Counts)
	}
	total := 0
	for _, count := range h.Counts {
		total += count
	}
	if total != 3 {
		t.Fatalf("every value must land in a bucket, got %d", total)
	}
}

func TestHistogramMinimumWidthAndSkip(t *testing.T) {
	t.Parallel()

	near := []domain.Entry{
		makeEntry("a", "x", domain.StateQueued, base),
		makeEntry("b", "x", domain.StateQueued, base.Add(2*time.Second)),
	}
	h, ok := AddedBin(time.Minute).Histogram(10, near)
	if !ok || h.Width != time.Minute.String() || len(h.Labels) != 11 || h.Counts[0] != 2 {
		t.Fatalf("expected minimum width histogram, got %+v ok=%v", h, ok)
	}

	same := []domain.Entry{
		makeEntry("a", "x", domain.StateQueued, base),
		makeEntry("b", "x", domain.StateQueued, base),
	}
	if _, ok := AddedBin(time.Minute).Histogram(10, same); ok {
		t.Fatalf("histogram over one distinct value must be skipped")
	}
	if _, ok := ExternalBin(time.Minute).Summarize(same); ok {
		t.Fatalf("bin summary without values must be skipped")
	}
}

func TestTabulateSkipsDegenerate(t *testing.T) {
	t.Parallel()

	flat := []domain.Entry{
		makeEntry("a", "x", domain.StateQueued, base, "a.rules"),
		makeEntry("b", "x", domain.StateQueued, base, "a.rules"),
	}
	if _, ok := Tabulate(StateProperty(), TypeProperty(), flat); ok {
		t.Fatalf("expected degenerate table to be omitted")
	}

	mixed := append(flat, makeEntry("c", "y", domain.StateQueued, base, "a.rules"))
	table, ok := Tabulate(StateProperty(), TypeProperty(), mixed)
	if !ok {
		t.Fatalf("one varying axis is enough for a table")
	}
	if table.Counts["QUEUED"]["x"] != 2 || table.Counts["QUEUED"]["y"] != 1 {
		t.Fatalf("unexpected counts %+v", table.Counts)
	}
}

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	entries := []domain.Entry{
		makeEntry("a", "x", domain.StateQueued, base, "a.rules"),
		makeEntry("b", "y", domain.StateFailed, base.Add(time.Hour), "b.rules"),
	}
	doc := Build(entries, Options{})
	if doc.Total != "2 actions" || len(doc.Summaries) != 4 {
		t.Fatalf("unexpected document header %+v", doc)
	}
	if len(doc.Bins) != 1 || len(doc.Histograms) != 1 || len(doc.Crosstabs) != 3 {
		t.Fatalf("unexpected sections bins=%d hist=%d tabs=%d", len(doc.Bins), len(doc.Histograms), len(doc.Crosstabs))
	}
}
