package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"actiond/internal/config"
	acttest "actiond/test/testutil"
)

type failingSink struct{ calls int }

func (s *failingSink) Publish(context.Context, string) error {
	s.calls++
	return errors.New("down")
}

func TestLogSinkLogsOnlyChanges(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := NewLogSink(slog.New(slog.NewTextHandler(&out, nil)))
	for _, snapshot := range []string{"[]", "[]", `[{"id":1}]`} {
		if err := s.Publish(context.Background(), snapshot); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if got := strings.Count(out.String(), "alert snapshot changed"); got != 2 {
		t.Fatalf("expected 2 log lines, got %d:\n%s", got, out.String())
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()

	first, second := &failingSink{}, &failingSink{}
	err := Fanout{first, second}.Publish(context.Background(), "[]")
	if err == nil || first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected both sinks called and error returned, got %v", err)
	}
}

func TestDigestIsStable(t *testing.T) {
	t.Parallel()

	if Digest("[]") != Digest("[]") || Digest("[]") == Digest("[ ]") {
		t.Fatalf("digest must depend only on content")
	}
	if len(Digest("")) != 40 {
		t.Fatalf("expected hex sha1")
	}
}

func TestNATSPublisherDeduplicatesSnapshots(t *testing.T) {
	t.Parallel()

	url := acttest.StartLocalNATSServer(t)
	cfg := config.Default().NATS.Snapshot

	publisher, err := NewNATSPublisher([]string{url}, cfg)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	t.Cleanup(func() { _ = publisher.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, snapshot := range []string{"[]", "[]", `[{"id":1}]`} {
		if err := publisher.Publish(ctx, snapshot); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	_, js := acttest.Connect(t, url)
	info, err := js.StreamInfo(cfg.Stream)
	if err != nil {
		t.Fatalf("stream info: %v", err)
	}
	if info.State.Msgs != 2 {
		t.Fatalf("expected 2 stored snapshots, got %d", info.State.Msgs)
	}
	last, err := js.GetLastMsg(cfg.Stream, cfg.Subject)
	if err != nil {
		t.Fatalf("last msg: %v", err)
	}
	if string(last.Data) != `[{"id":1}]` {
		t.Fatalf("unexpected last snapshot %s", last.Data)
	}
}
