package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"

	"actiond/internal/alerts"
	"actiond/internal/analytics"
	"actiond/internal/clock"
	"actiond/internal/domain"
	"actiond/internal/filter"
	"actiond/internal/metrics"
	"actiond/internal/pause"
	"actiond/internal/store"
)

// DefaultMinRetry is the floor applied to every action's retry interval.
const DefaultMinRetry = 5 * time.Minute

// AlertSink receives the alert snapshot after every scheduler pass.
type AlertSink interface {
	Publish(ctx context.Context, snapshot string) error
}

// Options configures engine construction.
// Params: collaborators and tuning; zero values select defaults.
// Returns: engine settings.
type Options struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Registry *prometheus.Registry
	HTTP     *http.Client
	Sink     AlertSink

	MinRetry    time.Duration
	Workers     int
	HardCap     int
	Buckets     int
	MinBinWidth time.Duration

	AlertBaseURI       string
	AlertRetainExpired time.Duration
}

// Engine owns action, pause and alert state and drives the scheduler.
// Params: built once per process or test.
// Returns: ingestion, query and administration surface.
type Engine struct {
	opts    Options
	clock   clock.Clock
	logger  *slog.Logger
	store   *store.Store
	pauses  *pause.Registry
	alerts  *alerts.Registry
	metrics *metrics.Metrics
	pool    pond.Pool
}

// New creates engine with empty state.
// Params: options.
// Returns: engine; call Close to stop the worker pool.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTP == nil {
		opts.HTTP = http.DefaultClient
	}
	if opts.MinRetry <= 0 {
		opts.MinRetry = DefaultMinRetry
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.HardCap <= 0 {
		opts.HardCap = filter.DefaultHardCap
	}
	if opts.Buckets <= 0 {
		opts.Buckets = analytics.DefaultBuckets
	}
	if opts.MinBinWidth <= 0 {
		opts.MinBinWidth = analytics.DefaultMinWidth
	}

	e := &Engine{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger,
		store:  store.New(opts.Clock.Now),
		pauses: pause.New(),
	}
	e.metrics = metrics.New(opts.Registry, e.store.Count)
	e.alerts = alerts.New(alerts.Options{
		BaseURI:       opts.AlertBaseURI,
		RetainExpired: opts.AlertRetainExpired,
		OnDuplicate:   e.metrics.AlertDuplicates.Inc,
		Logger:        opts.Logger,
		Now:           opts.Clock.Now,
	})
	if opts.Workers > 1 {
		e.pool = pond.NewPool(opts.Workers)
	}
	return e
}

// Close stops the worker pool after running tasks finish.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.StopAndWait()
	}
}

// Metrics returns the engine's metrics bundle.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Accept records one produced action.
// Params: action and the location that produced it.
// Returns: true when an equal action was already known.
func (e *Engine) Accept(action domain.Action, location domain.SourceLocation) bool {
	duplicate := e.store.Accept(action, location)
	if duplicate {
		e.metrics.ActionDuplicates.Inc()
	}
	return duplicate
}

// AcceptAlert records one alert.
// Params: flattened labels and annotations and time-to-live.
// Returns: duplicate flag or alerts.ErrOddLength.
func (e *Engine) AcceptAlert(labels, annotations []string, ttl time.Duration) (bool, error) {
	return e.alerts.Accept(labels, annotations, ttl)
}

// Stream returns actions matching every filter.
func (e *Engine) Stream(filters ...filter.Filter) []domain.Action {
	entries := filter.Collect(e.store, filters...)
	out := make([]domain.Action, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Action)
	}
	return out
}

// Rows projects matching entries into query rows.
// Params: optional location linker and filters.
// Returns: rows ordered by state then identity.
func (e *Engine) Rows(linker Linker, filters ...filter.Filter) []Row {
	return project(filter.Collect(e.store, filters...), linker)
}

// Page runs a bounded query.
// Params: filters, limit, skip and optional linker.
// Returns: rows after skip and capped total.
func (e *Engine) Page(filters []filter.Filter, limit, skip int, linker Linker) PageResult {
	page := filter.Query{
		Filters: filters,
		Limit:   limit,
		Skip:    skip,
		HardCap: e.opts.HardCap,
		Order:   compareEntries,
	}.Run(e.store)
	return PageResult{Rows: project(page.Entries, linker), Total: page.Total}
}

// Stats aggregates matching entries.
// Params: filters.
// Returns: analytics document over a materialized snapshot.
func (e *Engine) Stats(filters ...filter.Filter) analytics.Document {
	return analytics.Build(filter.Collect(e.store, filters...), analytics.Options{
		Buckets:  e.opts.Buckets,
		MinWidth: e.opts.MinBinWidth,
	})
}

// Purge removes matching actions.
// Params: filters; none removes everything.
// Returns: number removed.
func (e *Engine) Purge(filters ...filter.Filter) int {
	match := filter.All(filters...)
	removed := e.store.Purge(func(entry domain.Entry) bool { return match(entry.Action, entry.Info) })
	e.metrics.Purged.Add(float64(removed))
	if removed > 0 {
		e.logger.Info("actions purged", "count", removed)
	}
	return removed
}

// Pause suppresses execution of actions produced at location.
func (e *Engine) Pause(location domain.SourceLocation) {
	e.pauses.Pause(location)
	e.logger.Info("location paused", "location", location.String())
}

// Resume lifts a pause.
func (e *Engine) Resume(location domain.SourceLocation) {
	e.pauses.Resume(location)
	e.logger.Info("location resumed", "location", location.String())
}

// IsPaused reports whether location is paused.
func (e *Engine) IsPaused(location domain.SourceLocation) bool {
	return e.pauses.IsPaused(location)
}

// Pauses lists paused locations.
func (e *Engine) Pauses() []domain.SourceLocation {
	return e.pauses.Pauses()
}

// Alerts calls each for every live alert or onEmpty when none is live.
func (e *Engine) Alerts(each func(domain.Alert), onEmpty func()) {
	e.alerts.Each(each, onEmpty)
}

// AlertSnapshot returns the JSON snapshot cached at the last pass.
func (e *Engine) AlertSnapshot() string {
	return e.alerts.Snapshot()
}

// Locations lists every source location ever accepted.
func (e *Engine) Locations() []domain.SourceLocation {
	return e.store.Locations()
}

// Len returns number of known actions.
func (e *Engine) Len() int {
	return e.store.Len()
}
