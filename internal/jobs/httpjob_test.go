package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"actiond/internal/domain"
)

func newJob(t *testing.T, runtime *Runtime, endpoint string) *HTTPJob {
	t.Helper()
	job, err := runtime.New(Params{Endpoint: endpoint, Body: `{"job":"nightly"}`, Priority: 2})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func TestPerformMapsResponses(t *testing.T) {
	t.Parallel()

	var idempotency atomic.Value
	var status atomic.Int64
	var body atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idempotency.Store(r.Header.Get("Idempotency-Key"))
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer server.Close()

	runtime := NewRuntime(Settings{RatePerSec: 1000, Burst: 1000, StatusPath: "job.state"})
	job := newJob(t, runtime, server.URL+"/jobs")
	job.Accepted()
	services := domain.Services{HTTP: server.Client()}

	cases := []struct {
		code    int
		payload string
		want    domain.ActionState
		wantErr bool
	}{
		{http.StatusOK, `{"job":{"state":"running"}}`, domain.StateInflight, false},
		{http.StatusAccepted, `{"job":{"state":"queued"}}`, domain.StateQueued, false},
		{http.StatusOK, `{"job":{"state":"done"}}`, domain.StateSucceeded, false},
		{http.StatusOK, `{}`, domain.StateSucceeded, false},
		{http.StatusOK, `{"job":{"state":"mystery"}}`, domain.StateUnknown, false},
		{http.StatusTooManyRequests, ``, domain.StateThrottled, false},
		{http.StatusBadRequest, ``, domain.StateFailed, false},
		{http.StatusBadGateway, ``, domain.StateUnknown, true},
	}
	for _, tc := range cases {
		status.Store(int64(tc.code))
		body.Store(tc.payload)
		got, err := job.Perform(context.Background(), services)
		if (err != nil) != tc.wantErr {
			t.Fatalf("code %d: unexpected err %v", tc.code, err)
		}
		if got != tc.want {
			t.Fatalf("code %d payload %s: got %s want %s", tc.code, tc.payload, got, tc.want)
		}
	}
	if idempotency.Load().(string) != job.IdempotencyKey() {
		t.Fatalf("idempotency header not sent")
	}
}

func TestPerformThrottlesPerHost(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	runtime := NewRuntime(Settings{RatePerSec: 0.001, Burst: 1})
	first := newJob(t, runtime, server.URL+"/a")
	second := newJob(t, runtime, server.URL+"/b")
	first.Accepted()
	second.Accepted()

	services := domain.Services{HTTP: server.Client()}
	if state, _ := first.Perform(context.Background(), services); state != domain.StateSucceeded {
		t.Fatalf("first attempt: %s", state)
	}
	if state, _ := second.Perform(context.Background(), services); state != domain.StateThrottled {
		t.Fatalf("second attempt on same host must be throttled, got %s", state)
	}
	if hits.Load() != 1 {
		t.Fatalf("throttled attempt must not reach server")
	}

	first.PurgeCleanup()
	second.PurgeCleanup()
	if runtime.hosts.Size() != 0 {
		t.Fatalf("limiter must be released after last cleanup")
	}
}

func TestIdentityAndValidation(t *testing.T) {
	t.Parallel()

	runtime := NewRuntime(Settings{})
	a := newJob(t, runtime, "https://jobs.example/run")
	b := newJob(t, runtime, "https://jobs.example/run")
	if domain.Identity(a) != domain.Identity(b) || a.IdempotencyKey() != b.IdempotencyKey() {
		t.Fatalf("equal params must share identity")
	}
	external := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := runtime.New(Params{Endpoint: "https://jobs.example/run", Body: `{"job":"nightly"}`, Priority: 2, ExternalTime: &external})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.Key() == a.Key() {
		t.Fatalf("different params must differ")
	}
	if ts, ok := c.ExternalTimestamp(); !ok || !ts.Equal(external) {
		t.Fatalf("external timestamp lost")
	}
	if !a.Search(regexp.MustCompile("nightly")) {
		t.Fatalf("search must cover body")
	}

	for _, endpoint := range []string{"", "ftp://x/y", "http://"} {
		if _, err := runtime.New(Params{Endpoint: endpoint}); err == nil {
			t.Fatalf("expected validation error for %q", endpoint)
		}
	}
}

func TestRegistryDecode(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	NewRuntime(Settings{}).Register(registry)

	action, err := registry.Decode(KindHTTPJob, json.RawMessage(`{"endpoint":"https://jobs.example/run","retry_minutes":30}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if action.RetryMinutes() != 30 || action.Type() != KindHTTPJob {
		t.Fatalf("unexpected action %+v", action.Describe())
	}
	if _, err := registry.Decode("shell", nil); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	if kinds := registry.Kinds(); len(kinds) != 1 || kinds[0] != KindHTTPJob {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}
