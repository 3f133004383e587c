package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"actiond/internal/domain"
)

// ErrUnknownFilter rejects filter specs with an unsupported type.
var ErrUnknownFilter = errors.New("unknown filter type")

// Spec is the JSON form of one filter.
type Spec struct {
	Type      string         `json:"type"`
	Negate    bool           `json:"negate,omitempty"`
	States    []string       `json:"states,omitempty"`
	Start     *time.Time     `json:"start,omitempty"`
	End       *time.Time     `json:"end,omitempty"`
	Files     []string       `json:"files,omitempty"`
	Locations []LocationSpec `json:"locations,omitempty"`
	Kinds     []string       `json:"kinds,omitempty"`
	Pattern   string         `json:"pattern,omitempty"`
}

// LocationSpec is the JSON form of LocationPredicate.
type LocationSpec struct {
	File   string     `json:"file"`
	Line   *int       `json:"line,omitempty"`
	Column *int       `json:"column,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
}

// Build converts spec into a filter.
// Params: decoded spec.
// Returns: filter or validation error.
func (s Spec) Build() (Filter, error) {
	var f Filter
	switch s.Type {
	case "status":
		states := make([]domain.ActionState, 0, len(s.States))
		for _, raw := range s.States {
			state, err := domain.ParseState(raw)
			if err != nil {
				return nil, err
			}
			states = append(states, state)
		}
		f = IsState(states...)
	case "added":
		f = Added(s.timeRange())
	case "checked":
		f = Checked(s.timeRange())
	case "statuschanged":
		f = StatusChanged(s.timeRange())
	case "external":
		f = External(s.timeRange())
	case "sourcefile":
		f = FromFile(s.Files...)
	case "sourcelocation":
		predicates := make([]LocationPredicate, 0, len(s.Locations))
		for _, location := range s.Locations {
			predicates = append(predicates, LocationPredicate(location))
		}
		f = FromLocations(predicates...)
	case "kind":
		f = Type(s.Kinds...)
	case "text":
		pattern, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("text filter pattern: %w", err)
		}
		f = TextSearch(pattern)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFilter, s.Type)
	}
	if s.Negate {
		f = f.Negate()
	}
	return f, nil
}

func (s Spec) timeRange() Range {
	var r Range
	if s.Start != nil {
		r.Start = *s.Start
	}
	if s.End != nil {
		r.End = *s.End
	}
	return r
}

// BuildAll converts specs into filters.
// Params: decoded specs.
// Returns: filters in input order or first error.
func BuildAll(specs []Spec) ([]Filter, error) {
	filters := make([]Filter, 0, len(specs))
	for index, spec := range specs {
		f, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", index, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// Decode parses a JSON array of filter specs.
// Params: raw JSON.
// Returns: filters or decode/validation error.
func Decode(raw []byte) ([]Filter, error) {
	var specs []Spec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	return BuildAll(specs)
}
