package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"actiond/internal/domain"
)

// KindHTTPJob names the remote HTTP job action kind.
const KindHTTPJob = "http-job"

const maxResponseBytes = 1 << 20

// Settings holds defaults shared by every http-job action.
type Settings struct {
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	StatusPath string
}

// Runtime carries per-host rate limiters shared by http-job actions.
// Params: limiter settings; limiters live while at least one accepted job targets the host.
// Returns: shared execution state not part of action identity.
type Runtime struct {
	settings Settings
	hosts    *xsync.Map[string, *hostLimiter]
}

type hostLimiter struct {
	limiter *rate.Limiter
	refs    int
}

// NewRuntime creates runtime with settings.
func NewRuntime(settings Settings) *Runtime {
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.RatePerSec <= 0 {
		settings.RatePerSec = 1
	}
	if settings.Burst <= 0 {
		settings.Burst = 1
	}
	if strings.TrimSpace(settings.StatusPath) == "" {
		settings.StatusPath = "status"
	}
	return &Runtime{settings: settings, hosts: xsync.NewMap[string, *hostLimiter]()}
}

// Register binds the http-job decoder into registry.
func (r *Runtime) Register(registry *Registry) {
	registry.Register(KindHTTPJob, r.Decode)
}

// Params is the JSON form of http-job parameters.
type Params struct {
	Endpoint     string     `json:"endpoint"`
	Method       string     `json:"method,omitempty"`
	Body         string     `json:"body,omitempty"`
	Priority     int        `json:"priority,omitempty"`
	RetryMinutes int64      `json:"retry_minutes,omitempty"`
	ExternalTime *time.Time `json:"external_time,omitempty"`
	StatusPath   string     `json:"status_path,omitempty"`
}

// Decode builds HTTPJob from JSON parameters.
// Params: raw params JSON.
// Returns: action or validation error.
func (r *Runtime) Decode(raw json.RawMessage) (domain.Action, error) {
	var params Params
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return r.New(params)
}

// New builds HTTPJob from params.
// Params: job parameters; method defaults to POST.
// Returns: action or validation error.
func (r *Runtime) New(params Params) (*HTTPJob, error) {
	endpoint, err := url.Parse(strings.TrimSpace(params.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint scheme %q is not http(s)", endpoint.Scheme)
	}
	if endpoint.Host == "" {
		return nil, errors.New("endpoint host is required")
	}
	method := strings.ToUpper(strings.TrimSpace(params.Method))
	if method == "" {
		method = http.MethodPost
	}
	if params.RetryMinutes < 0 {
		return nil, errors.New("retry_minutes must be >=0")
	}
	statusPath := strings.TrimSpace(params.StatusPath)
	if statusPath == "" {
		statusPath = r.settings.StatusPath
	}

	job := &HTTPJob{
		runtime:    r,
		endpoint:   endpoint.String(),
		host:       endpoint.Host,
		method:     method,
		body:       params.Body,
		priority:   params.Priority,
		retry:      params.RetryMinutes,
		statusPath: statusPath,
	}
	if params.ExternalTime != nil {
		job.external = params.ExternalTime.UTC()
	}
	identity := map[string]string{
		"endpoint":      job.endpoint,
		"method":        job.method,
		"body":          job.body,
		"priority":      strconv.Itoa(job.priority),
		"retry_minutes": strconv.FormatInt(job.retry, 10),
		"status_path":   job.statusPath,
	}
	if !job.external.IsZero() {
		identity["external_time"] = job.external.Format(time.RFC3339Nano)
	}
	job.key = domain.ParamsKey(identity)
	return job, nil
}

// HTTPJob triggers and polls one remote job over HTTP.
type HTTPJob struct {
	runtime *Runtime

	key        string
	endpoint   string
	host       string
	method     string
	body       string
	priority   int
	retry      int64
	external   time.Time
	statusPath string
}

// Type returns KindHTTPJob.
func (j *HTTPJob) Type() string { return KindHTTPJob }

// Key returns value identity over all parameters.
func (j *HTTPJob) Key() string { return j.key }

// Priority returns configured priority.
func (j *HTTPJob) Priority() int { return j.priority }

// RetryMinutes returns configured retry interval.
func (j *HTTPJob) RetryMinutes() int64 { return j.retry }

// ExternalTimestamp returns external_time when set.
func (j *HTTPJob) ExternalTimestamp() (time.Time, bool) {
	return j.external, !j.external.IsZero()
}

// Search matches endpoint, method or body.
func (j *HTTPJob) Search(pattern *regexp.Regexp) bool {
	return pattern.MatchString(j.endpoint) || pattern.MatchString(j.method) || pattern.MatchString(j.body)
}

// Accepted takes a reference on the host limiter.
func (j *HTTPJob) Accepted() {
	j.runtime.hosts.Compute(j.host, func(existing *hostLimiter, loaded bool) (*hostLimiter, xsync.ComputeOp) {
		if !loaded {
			existing = &hostLimiter{limiter: rate.NewLimiter(rate.Limit(j.runtime.settings.RatePerSec), j.runtime.settings.Burst)}
		}
		existing.refs++
		return existing, xsync.UpdateOp
	})
}

// PurgeCleanup drops the host limiter reference; the last one frees it.
func (j *HTTPJob) PurgeCleanup() {
	j.runtime.hosts.Compute(j.host, func(existing *hostLimiter, loaded bool) (*hostLimiter, xsync.ComputeOp) {
		if !loaded {
			return existing, xsync.CancelOp
		}
		existing.refs--
		if existing.refs <= 0 {
			return existing, xsync.DeleteOp
		}
		return existing, xsync.UpdateOp
	})
}

// IdempotencyKey is the deterministic header value sent with every attempt.
func (j *HTTPJob) IdempotencyKey() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(domain.Identity(j))).String()
}

// Perform sends the job request and maps the response into a state.
// Params: execution context and services.
// Returns: state, or a recoverable error on transport failures and 5xx.
func (j *HTTPJob) Perform(ctx context.Context, services domain.Services) (domain.ActionState, error) {
	if !j.limiter().Allow() {
		return domain.StateThrottled, nil
	}

	ctx, cancel := context.WithTimeout(ctx, j.runtime.settings.Timeout)
	defer cancel()

	var body io.Reader
	if j.body != "" {
		body = strings.NewReader(j.body)
	}
	req, err := http.NewRequestWithContext(ctx, j.method, j.endpoint, body)
	if err != nil {
		return domain.StateFailed, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Idempotency-Key", j.IdempotencyKey())
	req.Header.Set("Accept", "application/json")
	if j.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := services.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.StateUnknown, fmt.Errorf("%s %s: %w", j.method, j.endpoint, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.StateUnknown, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.StateThrottled, nil
	case resp.StatusCode >= 500:
		return domain.StateUnknown, fmt.Errorf("%s %s: status %d", j.method, j.endpoint, resp.StatusCode)
	case resp.StatusCode >= 400:
		if services.Logger != nil {
			services.Logger.Warn("http job rejected", "endpoint", j.endpoint, "status", resp.StatusCode)
		}
		return domain.StateFailed, nil
	}

	status := gjson.GetBytes(payload, j.statusPath)
	if !status.Exists() {
		return domain.StateSucceeded, nil
	}
	return MapStatus(status.String()), nil
}

// MapStatus converts a remote status string into an action state.
// Params: remote status, case-insensitive.
// Returns: matching state or UNKNOWN.
func MapStatus(status string) domain.ActionState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "pending", "scheduled":
		return domain.StateQueued
	case "waiting", "blocked":
		return domain.StateWaiting
	case "running", "inflight", "in_progress":
		return domain.StateInflight
	case "succeeded", "success", "done", "completed":
		return domain.StateSucceeded
	case "failed", "error", "cancelled", "canceled":
		return domain.StateFailed
	case "throttled":
		return domain.StateThrottled
	default:
		return domain.StateUnknown
	}
}

// Describe returns parameters for query rows.
func (j *HTTPJob) Describe() map[string]any {
	out := map[string]any{
		"endpoint":      j.endpoint,
		"method":        j.method,
		"priority":      j.priority,
		"retry_minutes": j.retry,
		"status_path":   j.statusPath,
	}
	if !j.external.IsZero() {
		out["external_time"] = j.external
	}
	return out
}

func (j *HTTPJob) limiter() *rate.Limiter {
	if entry, ok := j.runtime.hosts.Load(j.host); ok {
		return entry.limiter
	}
	// Not accepted through a store; keep a limiter for the host anyway.
	entry, _ := j.runtime.hosts.LoadOrStore(j.host, &hostLimiter{
		limiter: rate.NewLimiter(rate.Limit(j.runtime.settings.RatePerSec), j.runtime.settings.Burst),
	})
	return entry.limiter
}
