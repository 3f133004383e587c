package e2e

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"actiond/internal/domain"
)

func TestServiceSmokeRunsAndPausesJobs(t *testing.T) {
	port, err := freePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}

	var hits atomic.Int64
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"status":"done"}`))
	}))
	defer target.Close()

	service := newServiceFromConfig(t, e2eConfig(port, "actiond-smoke", "single", ""))
	cancel, done := runService(t, service)
	defer cancel()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitReady(t, port)

	status, body := postJSON(t, baseURL+"/pauses", `{"file":"paused.star","line":1,"column":1,"time":"2026-01-01T00:00:00Z"}`)
	if status != http.StatusNoContent {
		t.Fatalf("expected pause 204, got %d: %s", status, body)
	}

	submission := `[
		{"kind":"http-job","params":{"endpoint":"%s/a"},"location":{"file":"jobs.star","line":3,"column":1}},
		{"kind":"http-job","params":{"endpoint":"%s/b"},"location":{"file":"paused.star","line":1,"column":1,"time":"2026-01-01T00:00:00Z"}}
	]`
	status, body = postJSON(t, baseURL+"/actions", fmt.Sprintf(submission, target.URL, target.URL))
	if status != http.StatusAccepted {
		t.Fatalf("expected ingest 202, got %d: %s", status, body)
	}

	waitFor(t, 10*time.Second, func() bool {
		page, ok := query(t, baseURL, `{"filters":[{"type":"status","states":["SUCCEEDED"]}]}`)
		return ok && page.Total == 1
	})
	waitFor(t, 10*time.Second, func() bool {
		page, ok := query(t, baseURL, `{"filters":[{"type":"sourcefile","files":["paused.star"]}]}`)
		return ok && page.Total == 1 && page.Rows[0].State == domain.StateThrottled
	})
	if hits.Load() != 1 {
		t.Fatalf("expected only the unpaused job to reach the target, got %d hits", hits.Load())
	}

	response, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	raw, _ := io.ReadAll(response.Body)
	_ = response.Body.Close()
	if !strings.Contains(string(raw), `actiond_actions{state="SUCCEEDED"} 1`) {
		t.Fatalf("expected succeeded population gauge in metrics")
	}

	cancel()
	waitServiceStop(t, done)
}
