package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"actiond/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "actiond"
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultMetricsPath        = "/metrics"
	defaultMaxBodyBytes       = 2 << 20
	defaultIntervalSec        = 60
	defaultMinRetryMinutes    = 5
	defaultWorkers            = 1
	defaultHardCap            = 500
	defaultHistogramBuckets   = 10
	defaultMinBinWidthSec     = 60
	defaultAlertsBaseURI      = "/alerts"
	defaultAlertsRetainSec    = 3600
	defaultAlertsTTLSec       = 300
	defaultJobTimeoutSec      = 30
	defaultJobRatePerSec      = 1.0
	defaultJobBurst           = 5
	defaultJobStatusPath      = "status"
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSActionSubject  = "actiond.actions"
	defaultNATSAlertSubject   = "actiond.alerts"
	defaultNATSIngestStream   = "ACTIOND_INGEST"
	defaultNATSIngestConsumer = "actiond-ingest"
	defaultNATSIngestGroup    = "actiond-workers"
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 1024
	defaultNATSSnapSubject    = "actiond.alerts.snapshot"
	defaultNATSSnapStream     = "ACTIOND_SNAPSHOTS"

	// ServiceModeNATS adds JetStream ingest and snapshot publishing.
	ServiceModeNATS = "nats"
	// ServiceModeSingle keeps single-instance mode without NATS dependencies.
	ServiceModeSingle = "single"
)

// Config holds service runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Query     QueryConfig     `toml:"query"`
	Alerts    AlertsConfig    `toml:"alerts"`
	Links     LinksConfig     `toml:"links"`
	HTTP      HTTPConfig      `toml:"http"`
	NATS      NATSConfig      `toml:"nats"`
	Jobs      JobsConfig      `toml:"jobs"`
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	Name string `toml:"name"`
	Mode string `toml:"mode"`
}

// SchedulerConfig controls the periodic execution pass.
// Params: fixed delay between passes, backoff floor and worker count.
// Returns: scheduler behavior.
type SchedulerConfig struct {
	IntervalSec     int `toml:"interval_sec"`
	MinRetryMinutes int `toml:"min_retry_minutes"`
	Workers         int `toml:"workers"`
}

// Interval returns the delay between passes.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// MinRetry returns the backoff floor.
func (c SchedulerConfig) MinRetry() time.Duration {
	return time.Duration(c.MinRetryMinutes) * time.Minute
}

// QueryConfig bounds query and analytics cost.
type QueryConfig struct {
	HardCap          int `toml:"hard_cap"`
	HistogramBuckets int `toml:"histogram_buckets"`
	MinBinWidthSec   int `toml:"min_bin_width_sec"`
}

// MinBinWidth returns the narrowest histogram bucket.
func (c QueryConfig) MinBinWidth() time.Duration {
	return time.Duration(c.MinBinWidthSec) * time.Second
}

// AlertsConfig controls the alert registry.
// Params: generator URL base, retention after expiry and default TTL for ingest.
// Returns: alert registry behavior.
type AlertsConfig struct {
	BaseURI          string `toml:"base_uri"`
	RetainExpiredSec int    `toml:"retain_expired_sec"`
	DefaultTTLSec    int    `toml:"default_ttl_sec"`
}

// RetainExpired returns how long expired alerts are kept.
func (c AlertsConfig) RetainExpired() time.Duration {
	return time.Duration(c.RetainExpiredSec) * time.Second
}

// DefaultTTL returns TTL used when a submission omits it.
func (c AlertsConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSec) * time.Second
}

// LinksConfig renders source locations into links.
type LinksConfig struct {
	SourceURL string `toml:"source_url"`
}

// HTTPConfig configures the admin and ingest HTTP server.
type HTTPConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MetricsPath  string `toml:"metrics_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSConfig configures JetStream ingest and snapshot publishing.
// Params: connection URLs plus ingest/snapshot blocks; subjects are runtime-fixed.
// Returns: NATS behavior used when service.mode=nats.
type NATSConfig struct {
	URL      []string           `toml:"url"`
	Ingest   NATSIngestConfig   `toml:"ingest"`
	Snapshot NATSSnapshotConfig `toml:"snapshot"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
type NATSIngestConfig struct {
	Enabled       bool   `toml:"enabled"`
	ActionSubject string `toml:"-"`
	AlertSubject  string `toml:"-"`
	Stream        string `toml:"-"`
	ConsumerName  string `toml:"-"`
	DeliverGroup  string `toml:"-"`
	Workers       int    `toml:"workers"`
	AckWaitSec    int    `toml:"ack_wait_sec"`
	NackDelayMS   int    `toml:"nack_delay_ms"`
	MaxDeliver    int    `toml:"max_deliver"`
	MaxAckPending int    `toml:"max_ack_pending"`
}

// NATSSnapshotConfig configures alert snapshot publishing.
type NATSSnapshotConfig struct {
	Enabled bool   `toml:"enabled"`
	Subject string `toml:"-"`
	Stream  string `toml:"-"`
}

// JobsConfig holds defaults for the http-job action kind.
type JobsConfig struct {
	TimeoutSec int     `toml:"timeout_sec"`
	RatePerSec float64 `toml:"rate_per_sec"`
	Burst      int     `toml:"burst"`
	StatusPath string  `toml:"status_path"`
}

// Timeout returns per-request timeout.
func (c JobsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, _, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a validated configuration with every default applied.
// Params: none.
// Returns: single-mode configuration.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config, names of top-level sections present, or read/decode error.
func loadFile(path string) (Config, map[string]bool, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var sections map[string]any
	if err := toml.Unmarshal(body, &sections); err != nil {
		return Config{}, nil, fmt.Errorf("decode config file %q: %w", path, err)
	}
	present := make(map[string]bool, len(sections))
	for name := range sections {
		present[name] = true
	}
	return cfg, present, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, present, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, present)
	}
	return merged, nil
}

// mergeConfig overlays every section the fragment declares onto destination.
// Params: destination config, next fragment and its declared section names.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, present map[string]bool) {
	dstValue := reflect.ValueOf(dst).Elem()
	srcValue := reflect.ValueOf(src)
	fields := dstValue.Type()
	for index := 0; index < fields.NumField(); index++ {
		tag := strings.Split(fields.Field(index).Tag.Get("toml"), ",")[0]
		if present[tag] {
			dstValue.Field(index).Set(srcValue.Field(index))
		}
	}
}

// ApplyDefaults fills unset values.
// Params: configuration to mutate.
// Returns: none.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Scheduler.IntervalSec <= 0 {
		cfg.Scheduler.IntervalSec = defaultIntervalSec
	}
	if cfg.Scheduler.MinRetryMinutes <= 0 {
		cfg.Scheduler.MinRetryMinutes = defaultMinRetryMinutes
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = defaultWorkers
	}

	if cfg.Query.HardCap <= 0 {
		cfg.Query.HardCap = defaultHardCap
	}
	if cfg.Query.HistogramBuckets <= 0 {
		cfg.Query.HistogramBuckets = defaultHistogramBuckets
	}
	if cfg.Query.MinBinWidthSec <= 0 {
		cfg.Query.MinBinWidthSec = defaultMinBinWidthSec
	}

	if strings.TrimSpace(cfg.Alerts.BaseURI) == "" {
		cfg.Alerts.BaseURI = defaultAlertsBaseURI
	}
	if cfg.Alerts.RetainExpiredSec == 0 {
		cfg.Alerts.RetainExpiredSec = defaultAlertsRetainSec
	}
	if cfg.Alerts.DefaultTTLSec <= 0 {
		cfg.Alerts.DefaultTTLSec = defaultAlertsTTLSec
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Jobs.TimeoutSec <= 0 {
		cfg.Jobs.TimeoutSec = defaultJobTimeoutSec
	}
	if cfg.Jobs.RatePerSec <= 0 {
		cfg.Jobs.RatePerSec = defaultJobRatePerSec
	}
	if cfg.Jobs.Burst <= 0 {
		cfg.Jobs.Burst = defaultJobBurst
	}
	if strings.TrimSpace(cfg.Jobs.StatusPath) == "" {
		cfg.Jobs.StatusPath = defaultJobStatusPath
	}

	cfg.NATS.URL = normalizeNATSURLs(cfg.NATS.URL)
	if cfg.Service.Mode == ServiceModeNATS && len(cfg.NATS.URL) == 0 {
		cfg.NATS.URL = []string{defaultNATSURL}
	}
	ingest := &cfg.NATS.Ingest
	ingest.ActionSubject = defaultNATSActionSubject
	ingest.AlertSubject = defaultNATSAlertSubject
	ingest.Stream = defaultNATSIngestStream
	ingest.ConsumerName = defaultNATSIngestConsumer
	ingest.DeliverGroup = defaultNATSIngestGroup
	if ingest.Workers <= 0 {
		ingest.Workers = 1
	}
	if ingest.AckWaitSec <= 0 {
		ingest.AckWaitSec = defaultNATSAckWaitSec
	}
	if ingest.NackDelayMS <= 0 {
		ingest.NackDelayMS = defaultNATSNackDelayMS
	}
	if ingest.MaxDeliver == 0 {
		ingest.MaxDeliver = defaultNATSMaxDeliver
	}
	if ingest.MaxAckPending <= 0 {
		ingest.MaxAckPending = defaultNATSMaxAckPending
	}
	cfg.NATS.Snapshot.Subject = defaultNATSSnapSubject
	cfg.NATS.Snapshot.Stream = defaultNATSSnapStream
}

// Validate checks a defaulted configuration.
// Params: configuration snapshot.
// Returns: first validation error.
func Validate(cfg Config) error {
	mode := NormalizeServiceMode(cfg.Service.Mode)
	if !IsSupportedServiceMode(mode) {
		return fmt.Errorf("service.mode has unsupported value %q", cfg.Service.Mode)
	}
	if cfg.Scheduler.IntervalSec <= 0 {
		return errors.New("scheduler.interval_sec must be >0")
	}
	if cfg.Scheduler.MinRetryMinutes <= 0 {
		return errors.New("scheduler.min_retry_minutes must be >0")
	}
	if cfg.Scheduler.Workers <= 0 {
		return errors.New("scheduler.workers must be >0")
	}
	if cfg.Query.HardCap <= 0 {
		return errors.New("query.hard_cap must be >0")
	}
	if cfg.Query.HistogramBuckets <= 0 {
		return errors.New("query.histogram_buckets must be >0")
	}
	if cfg.Alerts.RetainExpiredSec < 0 {
		return errors.New("alerts.retain_expired_sec must be >=0")
	}
	if strings.TrimSpace(cfg.Links.SourceURL) != "" {
		linker, err := templatefmt.NewLinker(cfg.Links.SourceURL)
		if err != nil {
			return fmt.Errorf("links.source_url: %w", err)
		}
		if err := linker.Check(); err != nil {
			return fmt.Errorf("links.source_url: %w", err)
		}
	}
	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		return errors.New("http.listen is required")
	}
	if cfg.Jobs.RatePerSec <= 0 || cfg.Jobs.Burst <= 0 {
		return errors.New("jobs.rate_per_sec and jobs.burst must be >0")
	}
	if mode == ServiceModeNATS {
		if len(cfg.NATS.URL) == 0 {
			return errors.New("nats.url is required when service.mode=nats")
		}
		for i, url := range cfg.NATS.URL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("nats.url[%d] is empty", i)
			}
		}
		if cfg.NATS.Ingest.Enabled {
			if cfg.NATS.Ingest.Workers <= 0 {
				return errors.New("nats.ingest.workers must be >0 when nats.ingest.enabled=true")
			}
			if cfg.NATS.Ingest.AckWaitSec <= 0 {
				return errors.New("nats.ingest.ack_wait_sec must be >0 when nats.ingest.enabled=true")
			}
			if cfg.NATS.Ingest.MaxDeliver == 0 || cfg.NATS.Ingest.MaxDeliver < -1 {
				return errors.New("nats.ingest.max_deliver must be -1 or >0")
			}
		}
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	return nil
}

// normalizeNATSURLs trims spaces around each configured NATS URL.
// Params: raw URL list from config.
// Returns: normalized URL list preserving element count for validation.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = strings.TrimSpace(urls[i])
	}
	return out
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`single` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeSingle
	}
	return normalized
}

// IsSupportedServiceMode reports whether mode value is supported.
// Params: normalized mode value.
// Returns: true for known modes.
func IsSupportedServiceMode(mode string) bool {
	switch NormalizeServiceMode(mode) {
	case ServiceModeNATS, ServiceModeSingle:
		return true
	default:
		return false
	}
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error", "panic":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
