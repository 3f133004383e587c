package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"actiond/internal/clock"
	"actiond/internal/config"
	"actiond/internal/domain"
	"actiond/internal/engine"
	acttest "actiond/test/testutil"
)

var start = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, extra string) (*Service, *clock.Manual) {
	t.Helper()

	dir := t.TempDir()
	body := `
[log.console]
enabled = false

[log.file]
enabled = true
path = "` + filepath.ToSlash(filepath.Join(dir, "actiond.log")) + `"

[http]
listen = "127.0.0.1:0"

[links]
source_url = "https://src.example/{{ .File }}#L{{ .Line }}"
` + extra
	path := filepath.Join(dir, "actiond.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	source, err := config.FromCLI(path, "")
	if err != nil {
		t.Fatalf("from cli: %v", err)
	}
	clk := clock.NewManual(start)
	service, err := NewService(source, clk)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, clk
}

func TestServiceRunsHTTPJobEndToEnd(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Idempotency-Key") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"status":"SUCCEEDED"}`))
	}))
	t.Cleanup(target.Close)

	service, _ := newTestService(t, "")
	t.Cleanup(service.cleanupInitResources)
	api := httptest.NewServer(service.Handler())
	t.Cleanup(api.Close)

	submission := `{"kind":"http-job","params":{"endpoint":"` + target.URL + `/run","method":"POST"},"location":{"file":"deploy.star","line":12,"column":4}}`
	response, err := http.Post(api.URL+"/actions", "application/json", strings.NewReader(submission))
	if err != nil {
		t.Fatalf("post action: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", response.StatusCode)
	}

	if err := service.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one job request, got %d", hits.Load())
	}

	response, err = http.Post(api.URL+"/query", "application/json", strings.NewReader(`{"limit":5}`))
	if err != nil {
		t.Fatalf("post query: %v", err)
	}
	defer response.Body.Close()
	var page engine.PageResult
	if err := json.NewDecoder(response.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.Rows[0].State != domain.StateSucceeded {
		t.Fatalf("expected one succeeded row, got %+v", page)
	}
	if got := page.Rows[0].Locations[0].URL; got != "https://src.example/deploy.star#L12" {
		t.Fatalf("unexpected location link %q", got)
	}
}

func TestServiceRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	acttest.Eventually(t, 2*time.Second, func() bool { return service.ready() == nil })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
	if service.ready() == nil {
		t.Fatalf("expected not ready after shutdown")
	}
}

func TestServiceNATSModeIngestsAndPublishes(t *testing.T) {
	t.Parallel()

	url := acttest.StartLocalNATSServer(t)
	service, _ := newTestService(t, `
[service]
mode = "nats"

[nats]
url = ["`+url+`"]

[nats.ingest]
enabled = true

[nats.snapshot]
enabled = true
`)
	t.Cleanup(service.cleanupInitResources)
	if service.natsSub == nil || service.publisher == nil {
		t.Fatalf("expected nats subscriber and publisher")
	}

	_, js := acttest.Connect(t, url)
	cfg := config.Default()
	if _, err := js.Publish(cfg.NATS.Ingest.AlertSubject, []byte(`{"labels":["job","api"],"annotations":["summary","slow"]}`)); err != nil {
		t.Fatalf("publish alert: %v", err)
	}
	acttest.Eventually(t, 5*time.Second, func() bool {
		live := 0
		service.engine.Alerts(func(domain.Alert) { live++ }, nil)
		return live == 1
	})

	if err := service.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	last, err := js.GetLastMsg(cfg.NATS.Snapshot.Stream, cfg.NATS.Snapshot.Subject)
	if err != nil {
		t.Fatalf("last snapshot: %v", err)
	}
	var alerts []domain.Alert
	if err := json.Unmarshal(last.Data, &alerts); err != nil || len(alerts) != 1 {
		t.Fatalf("expected one published alert, got %s (%v)", last.Data, err)
	}
	if alerts[0].Labels["job"] != "api" {
		t.Fatalf("unexpected labels %v", alerts[0].Labels)
	}
}
