package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"actiond/internal/config"
)

const (
	snapshotStreamMaxAge  = 24 * time.Hour
	snapshotStreamPerSubj = 64
)

// NATSPublisher publishes alert snapshots into a JetStream stream.
// Params: NATS connection and publish subject.
// Returns: snapshot sink.
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSPublisher connects and ensures the snapshot stream exists.
// Params: server URLs and snapshot config.
// Returns: publisher or setup error.
func NewNATSPublisher(urls []string, cfg config.NATSSnapshotConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(strings.Join(urls, ","), nats.Name("actiond-snapshots"))
	if err != nil {
		return nil, fmt.Errorf("connect snapshot nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for snapshots: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Publish sends one snapshot; identical snapshots inside the stream's
// duplicate window are dropped by the server via Nats-Msg-Id.
// Params: context and JSON snapshot.
// Returns: publish error.
func (p *NATSPublisher) Publish(ctx context.Context, snapshot string) error {
	msg := nats.NewMsg(p.subject)
	msg.Data = []byte(snapshot)
	msg.Header.Set(nats.MsgIdHdr, Digest(snapshot))
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish alert snapshot: %w", err)
	}
	return nil
}

// Close closes publisher NATS connection.
// Params: none.
// Returns: nil after connection close.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

// ensureStream ensures the snapshot stream exists.
// Params: JetStream context, stream name and subject.
// Returns: stream create/lookup error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:              streamName,
		Subjects:          []string{subject},
		Retention:         nats.LimitsPolicy,
		Storage:           nats.FileStorage,
		MaxAge:            snapshotStreamMaxAge,
		MaxMsgsPerSubject: snapshotStreamPerSubj,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
