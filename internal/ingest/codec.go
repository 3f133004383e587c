package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"actiond/internal/domain"
	"actiond/internal/jobs"
)

// ErrInvalid marks submissions that can never be accepted as sent.
var ErrInvalid = errors.New("invalid submission")

// Engine is the ingestion surface consumed by HTTP and NATS ingest.
type Engine interface {
	Accept(action domain.Action, location domain.SourceLocation) bool
	AcceptAlert(labels, annotations []string, ttl time.Duration) (bool, error)
}

// ActionSubmission is the wire form of one produced action.
type ActionSubmission struct {
	Kind     string                `json:"kind"`
	Params   json.RawMessage       `json:"params"`
	Location domain.SourceLocation `json:"location"`
}

// AlertSubmission is the wire form of one alert.
type AlertSubmission struct {
	Labels      []string `json:"labels"`
	Annotations []string `json:"annotations"`
	TTLSec      int      `json:"ttl_sec,omitempty"`
}

// Result reports the dedup outcome of one submission.
type Result struct {
	Duplicate bool `json:"duplicate"`
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Engine     Engine
	Registry   *jobs.Registry
	DefaultTTL time.Duration
	// Ingested counts submissions by source and outcome when set.
	Ingested *prometheus.CounterVec
}

// Processor decodes submissions and hands them to the engine.
// Params: engine, kind registry and default alert TTL.
// Returns: shared ingestion path for every transport.
type Processor struct {
	opts ProcessorOptions
}

// NewProcessor creates submission processor.
// Params: processor options.
// Returns: processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	return &Processor{opts: opts}
}

// observe records one submission outcome.
func (p *Processor) observe(source string, results []Result, err error) {
	if p.opts.Ingested == nil {
		return
	}
	if err != nil {
		p.opts.Ingested.WithLabelValues(source, "rejected").Inc()
		return
	}
	for _, result := range results {
		outcome := "accepted"
		if result.Duplicate {
			outcome = "duplicate"
		}
		p.opts.Ingested.WithLabelValues(source, outcome).Inc()
	}
}

// SubmitActions decodes one object or array of actions and accepts each.
// Params: transport name for metrics and raw JSON payload.
// Returns: per-submission results or ErrInvalid-wrapped error; nothing is accepted on error.
func (p *Processor) SubmitActions(source string, raw []byte) ([]Result, error) {
	results, err := p.submitActions(raw)
	p.observe(source, results, err)
	return results, err
}

func (p *Processor) submitActions(raw []byte) ([]Result, error) {
	submissions, err := decodeOneOrMany[ActionSubmission](raw)
	if err != nil {
		return nil, err
	}
	actions := make([]domain.Action, 0, len(submissions))
	for index, submission := range submissions {
		if submission.Location.File == "" {
			return nil, fmt.Errorf("%w: action[%d]: location.file is required", ErrInvalid, index)
		}
		action, err := p.opts.Registry.Decode(submission.Kind, submission.Params)
		if err != nil {
			return nil, fmt.Errorf("%w: action[%d]: %v", ErrInvalid, index, err)
		}
		actions = append(actions, action)
	}

	results := make([]Result, 0, len(actions))
	for index, action := range actions {
		results = append(results, Result{Duplicate: p.opts.Engine.Accept(action, submissions[index].Location)})
	}
	return results, nil
}

// SubmitAlerts decodes one object or array of alerts and accepts each.
// Params: transport name for metrics and raw JSON payload.
// Returns: per-submission results or ErrInvalid-wrapped error.
func (p *Processor) SubmitAlerts(source string, raw []byte) ([]Result, error) {
	results, err := p.submitAlerts(raw)
	p.observe(source, results, err)
	return results, err
}

func (p *Processor) submitAlerts(raw []byte) ([]Result, error) {
	submissions, err := decodeOneOrMany[AlertSubmission](raw)
	if err != nil {
		return nil, err
	}
	for index, submission := range submissions {
		if len(submission.Labels)%2 != 0 || len(submission.Annotations)%2 != 0 {
			return nil, fmt.Errorf("%w: alert[%d]: key/value list has odd length", ErrInvalid, index)
		}
	}

	results := make([]Result, 0, len(submissions))
	for index, submission := range submissions {
		ttl := p.opts.DefaultTTL
		if submission.TTLSec > 0 {
			ttl = time.Duration(submission.TTLSec) * time.Second
		}
		duplicate, err := p.opts.Engine.AcceptAlert(submission.Labels, submission.Annotations, ttl)
		if err != nil {
			return results, fmt.Errorf("%w: alert[%d]: %v", ErrInvalid, index, err)
		}
		results = append(results, Result{Duplicate: duplicate})
	}
	return results, nil
}

// decodeOneOrMany auto-detects array vs single object payload.
// Params: raw JSON bytes.
// Returns: decoded values or ErrInvalid-wrapped error.
func decodeOneOrMany[T any](raw []byte) ([]T, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalid)
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()

	var out []T
	if payload[0] == '[' {
		if err := decoder.Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: decode batch: %v", ErrInvalid, err)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: batch must contain at least one element", ErrInvalid)
		}
	} else {
		var one T
		if err := decoder.Decode(&one); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
		}
		out = append(out, one)
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, nil
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}
