package analytics

import (
	"fmt"
	"time"

	"actiond/internal/domain"
)

// DefaultBuckets is the histogram bucket count used when unset.
const DefaultBuckets = 10

// Options tunes stats document construction.
type Options struct {
	Buckets  int
	MinWidth time.Duration
}

// Document is the analytics answer for one filtered snapshot.
type Document struct {
	Total      string       `json:"total"`
	Count      int          `json:"count"`
	Summaries  []Summary    `json:"summaries"`
	Bins       []BinSummary `json:"bins"`
	Histograms []Histogram  `json:"histograms"`
	Crosstabs  []Crosstab   `json:"crosstabs"`
}

// Build aggregates entries into summaries, bins, histograms and crosstabs.
// Params: materialized entries and tuning options.
// Returns: document; degenerate sections are omitted.
func Build(entries []domain.Entry, opts Options) Document {
	if opts.Buckets <= 0 {
		opts.Buckets = DefaultBuckets
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinWidth
	}

	state := StateProperty()
	kind := TypeProperty()
	file := SourceFileProperty()
	location := SourceLocationProperty()

	doc := Document{
		Total: fmt.Sprintf("%d actions", len(entries)),
		Count: len(entries),
		Summaries: []Summary{
			Summarize(state, entries),
			Summarize(kind, entries),
			Summarize(file, entries),
			Summarize(location, entries),
		},
		Bins:       []BinSummary{},
		Histograms: []Histogram{},
		Crosstabs:  []Crosstab{},
	}

	for _, bin := range []Bin{
		AddedBin(opts.MinWidth),
		CheckedBin(opts.MinWidth),
		StatusChangedBin(opts.MinWidth),
		ExternalBin(opts.MinWidth),
	} {
		if summary, ok := bin.Summarize(entries); ok {
			doc.Bins = append(doc.Bins, summary)
		}
		if histogram, ok := bin.Histogram(opts.Buckets, entries); ok {
			doc.Histograms = append(doc.Histograms, histogram)
		}
	}

	if table, ok := Tabulate(state, kind, entries); ok {
		doc.Crosstabs = append(doc.Crosstabs, table)
	}
	if table, ok := Tabulate(state, file, entries); ok {
		doc.Crosstabs = append(doc.Crosstabs, table)
	}
	if table, ok := Tabulate(kind, file, entries); ok {
		doc.Crosstabs = append(doc.Crosstabs, table)
	}
	return doc
}
