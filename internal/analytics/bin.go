package analytics

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"actiond/internal/domain"
)

// DefaultMinWidth is the narrowest histogram bucket.
const DefaultMinWidth = time.Minute

// Bin quantizes a time-valued property into fixed-width buckets.
type Bin struct {
	Name     string
	Extract  func(domain.Entry) (time.Time, bool)
	MinWidth time.Duration
}

// BinSummary reports the extent of a bin's values.
type BinSummary struct {
	Property string    `json:"property"`
	Min      time.Time `json:"min"`
	Max      time.Time `json:"max"`
}

// Histogram holds bucket boundaries and counts; len(Labels) == len(Counts)+1.
type Histogram struct {
	Property string      `json:"property"`
	Width    string      `json:"width"`
	Labels   []time.Time `json:"labels"`
	Counts   []int       `json:"counts"`
}

// AddedBin bins by lastAdded.
func AddedBin(minWidth time.Duration) Bin {
	return infoBin("added", minWidth, func(info domain.Information) time.Time { return info.LastAdded })
}

// CheckedBin bins by lastChecked.
func CheckedBin(minWidth time.Duration) Bin {
	return infoBin("checked", minWidth, func(info domain.Information) time.Time { return info.LastChecked })
}

// StatusChangedBin bins by lastStateTransition.
func StatusChangedBin(minWidth time.Duration) Bin {
	return infoBin("statuschanged", minWidth, func(info domain.Information) time.Time { return info.LastStateTransition })
}

// ExternalBin bins by the action's external timestamp.
func ExternalBin(minWidth time.Duration) Bin {
	return Bin{
		Name: "external",
		Extract: func(entry domain.Entry) (time.Time, bool) {
			return entry.Action.ExternalTimestamp()
		},
		MinWidth: minWidth,
	}
}

func infoBin(name string, minWidth time.Duration, field func(domain.Information) time.Time) Bin {
	return Bin{
		Name: name,
		Extract: func(entry domain.Entry) (time.Time, bool) {
			ts := field(entry.Info)
			return ts, !ts.IsZero()
		},
		MinWidth: minWidth,
	}
}

func (b Bin) values(entries []domain.Entry) []time.Time {
	out := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		if ts, ok := b.Extract(entry); ok {
			out = append(out, ts)
		}
	}
	slices.SortFunc(out, time.Time.Compare)
	return out
}

func (b Bin) minWidth() time.Duration {
	if b.MinWidth <= 0 {
		return DefaultMinWidth
	}
	return b.MinWidth
}

// Summarize reports min and max values.
// Params: materialized entries.
// Returns: summary and false when no entry has a value.
func (b Bin) Summarize(entries []domain.Entry) (BinSummary, bool) {
	values := b.values(entries)
	if len(values) == 0 {
		return BinSummary{}, false
	}
	return BinSummary{Property: b.Name, Min: values[0], Max: values[len(values)-1]}, true
}

// Histogram buckets values into exactly buckets counts.
// Params: desired bucket count and materialized entries.
// Returns: histogram, or false when fewer than two distinct values exist.
func (b Bin) Histogram(buckets int, entries []domain.Entry) (Histogram, bool) {
	if buckets < 1 {
		return Histogram{}, false
	}
	values := b.values(entries)
	if len(values) == 0 {
		return Histogram{}, false
	}
	low, high := values[0], values[len(values)-1]
	if !low.Before(high) {
		return Histogram{}, false
	}
	distinct := lo.UniqBy(values, func(ts time.Time) int64 { return ts.UnixNano() })
	if len(distinct) < 2 {
		return Histogram{}, false
	}

	width := max(b.minWidth(), high.Sub(low)/time.Duration(buckets))
	h := Histogram{
		Property: b.Name,
		Width:    width.String(),
		Labels:   make([]time.Time, buckets+1),
		Counts:   make([]int, buckets),
	}
	for index := range h.Labels {
		h.Labels[index] = low.Add(time.Duration(index) * width)
	}
	for _, ts := range values {
		index := int(ts.Sub(low) / width)
		if index >= buckets {
			index = buckets - 1
		}
		h.Counts[index]++
	}
	return h, true
}
