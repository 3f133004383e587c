package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"actiond/internal/domain"
	"actiond/internal/engine"
	"actiond/internal/filter"
)

const defaultMaxBodyBytes = 1 << 20

// RouterDeps wires the HTTP surface to the engine.
type RouterDeps struct {
	Engine    *engine.Engine
	Processor *Processor
	Linker    engine.Linker
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger

	MaxBodyBytes int64
	HealthPath   string
	ReadyPath    string
	MetricsPath  string
	// Ready reports readiness; nil means always ready.
	Ready func() error
}

type filterRequest struct {
	Filters []filter.Spec `json:"filters"`
	Limit   int           `json:"limit"`
	Skip    int           `json:"skip"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the ingest and administration router.
// Params: router dependencies.
// Returns: HTTP handler.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.HealthPath == "" {
		deps.HealthPath = "/healthz"
	}
	if deps.ReadyPath == "" {
		deps.ReadyPath = "/readyz"
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	if deps.Gatherer == nil {
		deps.Gatherer = deps.Engine.Metrics().Registry
	}

	r := chi.NewRouter()
	r.Get(deps.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get(deps.ReadyPath, handleReady(deps))
	r.Handle(deps.MetricsPath, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/actions", handleSubmit(deps, deps.Processor.SubmitActions))
	r.Post("/alerts", handleSubmit(deps, deps.Processor.SubmitAlerts))
	r.Get("/alerts", handleAlertSnapshot(deps))
	r.Get("/alerts/live", handleLiveAlerts(deps))

	r.Post("/query", handleQuery(deps))
	r.Post("/stats", handleStats(deps))
	r.Post("/purge", handlePurge(deps))

	r.Get("/pauses", handleListPauses(deps))
	r.Post("/pauses", handlePause(deps, true))
	r.Delete("/pauses", handlePause(deps, false))
	r.Post("/pauses/check", handlePauseCheck(deps))
	r.Get("/locations", handleLocations(deps))
	return r
}

func handleReady(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleSubmit(deps RouterDeps, submit func(source string, raw []byte) ([]Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}
		results, err := submit("http", body)
		if err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, ErrInvalid) {
				status = http.StatusBadRequest
			}
			deps.Logger.Warn("http ingest rejected", "path", r.URL.Path, "error", err.Error())
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, results)
	}
}

func handleAlertSnapshot(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, deps.Engine.AlertSnapshot())
	}
}

func handleLiveAlerts(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		live := make([]domain.Alert, 0)
		deps.Engine.Alerts(func(alert domain.Alert) {
			live = append(live, alert)
		}, nil)
		writeJSON(w, http.StatusOK, live)
	}
}

func handleQuery(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request, filters, ok := decodeFilterRequest(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, deps.Engine.Page(filters, request.Limit, request.Skip, deps.Linker))
	}
}

func handleStats(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, filters, ok := decodeFilterRequest(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, deps.Engine.Stats(filters...))
	}
}

func handlePurge(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, filters, ok := decodeFilterRequest(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}
		purged := deps.Engine.Purge(filters...)
		writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
	}
}

func handleListPauses(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Engine.Pauses())
	}
}

func handlePause(deps RouterDeps, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		location, ok := decodeLocation(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}
		if pause {
			deps.Engine.Pause(location)
		} else {
			deps.Engine.Resume(location)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePauseCheck(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		location, ok := decodeLocation(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": deps.Engine.IsPaused(location)})
	}
}

func handleLocations(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Engine.Locations())
	}
}

// readBody reads a size-limited request body.
// Params: response writer, request and max body size.
// Returns: body bytes and false after writing an error response.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Error: fmt.Sprintf("read body: %v", err)})
		return nil, false
	}
	return body, true
}

// decodeFilterRequest decodes an optional filter body.
// Params: response writer, request and max body size.
// Returns: request, compiled filters and false after writing an error response.
func decodeFilterRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (filterRequest, []filter.Filter, bool) {
	var request filterRequest
	body, ok := readBody(w, r, maxBytes)
	if !ok {
		return request, nil, false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &request); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode request: %v", err)})
			return request, nil, false
		}
	}
	filters, err := filter.BuildAll(request.Filters)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return request, nil, false
	}
	return request, filters, true
}

// decodeLocation decodes a source location body.
// Params: response writer, request and max body size.
// Returns: location and false after writing an error response.
func decodeLocation(w http.ResponseWriter, r *http.Request, maxBytes int64) (domain.SourceLocation, bool) {
	var location domain.SourceLocation
	body, ok := readBody(w, r, maxBytes)
	if !ok {
		return location, false
	}
	if err := json.Unmarshal(body, &location); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode location: %v", err)})
		return location, false
	}
	if location.File == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "location.file is required"})
		return location, false
	}
	return location, true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
