// Package sink delivers alert snapshots produced after every scheduler pass.
package sink

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"

	"actiond/internal/engine"
)

// LogSink writes snapshot changes to the logger.
// Params: logger; repeated identical snapshots are logged once.
// Returns: sink for deployments without a broker.
type LogSink struct {
	logger *slog.Logger
	last   string
}

// NewLogSink creates logger-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs snapshot when its digest changed.
// Params: context and JSON snapshot.
// Returns: nil.
func (s *LogSink) Publish(_ context.Context, snapshot string) error {
	digest := Digest(snapshot)
	if digest == s.last {
		return nil
	}
	s.last = digest
	s.logger.Info("alert snapshot changed", "digest", digest, "bytes", len(snapshot))
	return nil
}

// Fanout publishes to every sink in order.
type Fanout []engine.AlertSink

// Publish calls every sink.
// Params: context and JSON snapshot.
// Returns: joined sink errors.
func (f Fanout) Publish(ctx context.Context, snapshot string) error {
	var errs []error
	for _, target := range f {
		if err := target.Publish(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Digest returns the hex SHA1 of a snapshot, used as its message id.
func Digest(snapshot string) string {
	sum := sha1.Sum([]byte(snapshot))
	return hex.EncodeToString(sum[:])
}
