package e2e

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"actiond/internal/clock"
	"actiond/internal/domain"
	"actiond/internal/engine"
	"actiond/internal/ingest"
	"actiond/internal/jobs"
	"actiond/internal/logging"
	"actiond/test/testutil"
)

// BenchmarkIngestThroughput measures the decode and dedup path shared by HTTP and NATS ingest.
func BenchmarkIngestThroughput(b *testing.B) {
	e := engine.New(engine.Options{
		Clock:    clock.RealClock{},
		Logger:   logging.Discard(),
		Registry: prometheus.NewRegistry(),
	})
	defer e.Close()

	registry := jobs.NewRegistry()
	registry.Register("test", func(raw json.RawMessage) (domain.Action, error) {
		var params struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		return testutil.NewAction(params.Name), nil
	})
	processor := ingest.NewProcessor(ingest.ProcessorOptions{
		Engine:     e,
		Registry:   registry,
		DefaultTTL: time.Minute,
	})

	payloads := make([][]byte, 1024)
	for i := range payloads {
		payloads[i] = []byte(fmt.Sprintf(`{"kind":"test","params":{"name":"bench-%d"},"location":{"file":"bench.star","line":%d,"column":1}}`, i, i%32))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.SubmitActions("bench", payloads[i%len(payloads)]); err != nil {
			b.Fatalf("submit failed: %v", err)
		}
	}

	submissionsPerSecond := float64(b.N) / b.Elapsed().Seconds()
	b.ReportMetric(submissionsPerSecond, "submissions/sec")
}

// BenchmarkSchedulerPass measures one pass over a population of terminal actions.
func BenchmarkSchedulerPass(b *testing.B) {
	e := engine.New(engine.Options{
		Clock:    clock.RealClock{},
		Logger:   logging.Discard(),
		Registry: prometheus.NewRegistry(),
		Workers:  4,
	})
	defer e.Close()
	for i := range 5000 {
		e.Accept(testutil.NewAction(fmt.Sprintf("pass-%d", i)), testutil.Location("bench.star", i%50))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.Tick(b.Context()); err != nil {
			b.Fatalf("tick failed: %v", err)
		}
	}
}
