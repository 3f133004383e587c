package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"actiond/internal/config"
)

// NATSSubscriber consumes action and alert submissions via JetStream queue consumers.
// Params: NATS connection, one queue subscription per subject and worker, and processor.
// Returns: NATS ingest lifecycle handle.
type NATSSubscriber struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

// NewNATSSubscriber creates JetStream queue consumers for action and alert ingestion.
// Params: server URLs, ingest config, processor, and optional logger.
// Returns: started subscriber or initialization error.
func NewNATSSubscriber(urls []string, cfg config.NATSIngestConfig, processor *Processor, logger *slog.Logger) (*NATSSubscriber, error) {
	nc, err := nats.Connect(strings.Join(urls, ","), nats.Name("actiond-ingest"))
	if err != nil {
		return nil, fmt.Errorf("connect nats ingest: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for ingest: %w", err)
	}
	if err := EnsureStream(js, cfg.Stream, cfg.ActionSubject, cfg.AlertSubject); err != nil {
		nc.Close()
		return nil, err
	}

	subscriber := &NATSSubscriber{
		nc:     nc,
		logger: logger,
	}
	workers := max(1, cfg.Workers)
	routes := []struct {
		subject string
		durable string
		submit  func(string, []byte) ([]Result, error)
	}{
		{subject: cfg.ActionSubject, durable: cfg.ConsumerName + "-actions", submit: processor.SubmitActions},
		{subject: cfg.AlertSubject, durable: cfg.ConsumerName + "-alerts", submit: processor.SubmitAlerts},
	}
	for _, route := range routes {
		for range workers {
			sub, err := js.QueueSubscribe(route.subject, cfg.DeliverGroup, subscriber.handler(route.submit, cfg), subscribeOptions(cfg, route.durable)...)
			if err != nil {
				_ = subscriber.Close()
				return nil, fmt.Errorf("queue subscribe %q/%q: %w", route.subject, cfg.DeliverGroup, err)
			}
			subscriber.subs = append(subscriber.subs, sub)
		}
	}
	return subscriber, nil
}

// EnsureStream creates the stream when it does not exist yet.
// Params: JetStream context, stream name and subjects it must capture.
// Returns: lookup or creation error.
func EnsureStream(js nats.JetStreamContext, stream string, subjects ...string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", stream, err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: subjects,
		Storage:  nats.FileStorage,
	}); err != nil {
		return fmt.Errorf("add stream %q: %w", stream, err)
	}
	return nil
}

func subscribeOptions(cfg config.NATSIngestConfig, durable string) []nats.SubOpt {
	return []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(time.Duration(cfg.AckWaitSec) * time.Second),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	}
}

// handler processes one message; invalid payloads are acked so they are not redelivered.
func (s *NATSSubscriber) handler(submit func(string, []byte) ([]Result, error), cfg config.NATSIngestConfig) nats.MsgHandler {
	nackDelay := time.Duration(cfg.NackDelayMS) * time.Millisecond
	return func(message *nats.Msg) {
		_, err := submit("nats", message.Data)
		switch {
		case err == nil:
			s.ackMessage(message, "processed")
		case errors.Is(err, ErrInvalid):
			if s.logger != nil {
				s.logger.Warn("nats ingest rejected", "subject", message.Subject, "error", err.Error())
			}
			s.ackMessage(message, "invalid")
		default:
			if s.logger != nil {
				s.logger.Error("nats ingest failed", "subject", message.Subject, "error", err.Error())
			}
			s.nackMessage(message, nackDelay)
		}
	}
}

// ackMessage acknowledges processed/invalid message and logs ack failures.
// Params: JetStream message and short reason.
// Returns: none.
func (s *NATSSubscriber) ackMessage(message *nats.Msg, reason string) {
	if message == nil {
		return
	}
	if err := message.Ack(); err != nil && s.logger != nil {
		s.logger.Warn("nats ingest ack failed", "subject", message.Subject, "reason", reason, "error", err.Error())
	}
}

// nackMessage asks JetStream to redeliver message and logs nack failures.
// Params: JetStream message and optional delay.
// Returns: none.
func (s *NATSSubscriber) nackMessage(message *nats.Msg, delay time.Duration) {
	if message == nil {
		return
	}
	var err error
	if delay > 0 {
		err = message.NakWithDelay(delay)
	} else {
		err = message.Nak()
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("nats ingest nack failed", "subject", message.Subject, "error", err.Error())
	}
}

// Status reports connection health for readiness probes.
// Params: none.
// Returns: nil while connected.
func (s *NATSSubscriber) Status() error {
	if status := s.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats ingest connection %s", status)
	}
	return nil
}

// Close drains subscriptions and closes connection.
// Params: none.
// Returns: first drain error.
func (s *NATSSubscriber) Close() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.nc.Close()
	return firstErr
}
