package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"actiond/internal/clock"
	"actiond/internal/config"
	"actiond/internal/engine"
	"actiond/internal/ingest"
	"actiond/internal/jobs"
	"actiond/internal/logging"
	"actiond/internal/sink"
	"actiond/internal/templatefmt"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable action engine service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	engine    *engine.Engine
	router    http.Handler
	httpSrv   *http.Server
	natsSub   *ingest.NATSSubscriber
	publisher *sink.NATSPublisher
	readyFlag atomic.Bool
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	service := &Service{
		cfg:      cfg,
		logger:   logger.With("service", cfg.Service.Name),
		closeLog: closeLog,
	}

	if err := service.buildPublisher(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	processor := service.buildEngine(clk)
	if err := service.buildHTTPServer(processor); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildNATSSubscriber(processor); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	return service, nil
}

// Handler returns the HTTP router served by Run.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run starts service lifecycle and blocks until shutdown signal or fatal action error.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	engineDone := make(chan struct{})

	group.Go(func() error {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		defer close(engineDone)
		s.logger.Info("scheduler starting", "interval", s.cfg.Scheduler.Interval().String(), "workers", s.cfg.Scheduler.Workers)
		if err := s.engine.Run(groupCtx, s.cfg.Scheduler.Interval()); err != nil {
			return fmt.Errorf("scheduler stopped: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return s.shutdown(engineDone)
	})

	s.readyFlag.Store(true)
	return group.Wait()
}

// ready reports readiness for the probe endpoint.
func (s *Service) ready() error {
	if !s.readyFlag.Load() {
		return errors.New("not ready")
	}
	if s.natsSub != nil {
		return s.natsSub.Status()
	}
	return nil
}

// shutdown closes runtime resources in dependency order.
// Params: channel closed once the scheduler has returned.
// Returns: first close error.
func (s *Service) shutdown(engineDone <-chan struct{}) error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	<-engineDone
	s.engine.Close()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("snapshot publisher close failed", "error", err.Error())
			markErr(fmt.Errorf("snapshot publisher close: %w", err))
		}
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
		s.publisher = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildPublisher connects the snapshot publisher in nats mode.
// Params: none.
// Returns: connection error.
func (s *Service) buildPublisher() error {
	if isSingleMode(s.cfg) || !s.cfg.NATS.Snapshot.Enabled {
		return nil
	}
	publisher, err := sink.NewNATSPublisher(s.cfg.NATS.URL, s.cfg.NATS.Snapshot)
	if err != nil {
		return err
	}
	s.publisher = publisher
	return nil
}

// buildEngine creates the engine, kind registry and submission processor.
// Params: clock implementation.
// Returns: processor shared by HTTP and NATS ingest.
func (s *Service) buildEngine(clk clock.Clock) *ingest.Processor {
	sinks := sink.Fanout{sink.NewLogSink(s.logger)}
	if s.publisher != nil {
		sinks = append(sinks, s.publisher)
	}
	s.engine = engine.New(engine.Options{
		Clock:              clk,
		Logger:             s.logger,
		Registry:           prometheus.NewRegistry(),
		HTTP:               &http.Client{Timeout: s.cfg.Jobs.Timeout()},
		Sink:               sinks,
		MinRetry:           s.cfg.Scheduler.MinRetry(),
		Workers:            s.cfg.Scheduler.Workers,
		HardCap:            s.cfg.Query.HardCap,
		Buckets:            s.cfg.Query.HistogramBuckets,
		MinBinWidth:        s.cfg.Query.MinBinWidth(),
		AlertBaseURI:       s.cfg.Alerts.BaseURI,
		AlertRetainExpired: s.cfg.Alerts.RetainExpired(),
	})

	registry := jobs.NewRegistry()
	jobs.NewRuntime(jobs.Settings{
		Timeout:    s.cfg.Jobs.Timeout(),
		RatePerSec: s.cfg.Jobs.RatePerSec,
		Burst:      s.cfg.Jobs.Burst,
		StatusPath: s.cfg.Jobs.StatusPath,
	}).Register(registry)
	s.logger.Info("action kinds registered", "kinds", registry.Kinds())

	return ingest.NewProcessor(ingest.ProcessorOptions{
		Engine:     s.engine,
		Registry:   registry,
		DefaultTTL: s.cfg.Alerts.DefaultTTL(),
		Ingested:   s.engine.Metrics().Ingested,
	})
}

// buildHTTPServer wires the router with ingest, admin and health endpoints.
// Params: submission processor.
// Returns: setup error.
func (s *Service) buildHTTPServer(processor *ingest.Processor) error {
	var linker engine.Linker
	if s.cfg.Links.SourceURL != "" {
		built, err := templatefmt.NewLinker(s.cfg.Links.SourceURL)
		if err != nil {
			return fmt.Errorf("links.source_url: %w", err)
		}
		linker = built
	}
	s.router = ingest.NewRouter(ingest.RouterDeps{
		Engine:       s.engine,
		Processor:    processor,
		Linker:       linker,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.HTTP.MaxBodyBytes,
		HealthPath:   s.cfg.HTTP.HealthPath,
		ReadyPath:    s.cfg.HTTP.ReadyPath,
		MetricsPath:  s.cfg.HTTP.MetricsPath,
		Ready:        s.ready,
	})
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: submission processor.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber(processor *ingest.Processor) error {
	if isSingleMode(s.cfg) || !s.cfg.NATS.Ingest.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.NATS.URL, s.cfg.NATS.Ingest, processor, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
