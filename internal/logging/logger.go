package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"actiond/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
)

// levelPanic sits above error for the "panic" config level.
const levelPanic = slog.Level(12)

var (
	quotedPattern = regexp.MustCompile(`"[^"\n]*"`)
	statePattern  = regexp.MustCompile(`\b(?:FAILED|UNKNOWN|WAITING|THROTTLED|QUEUED|INFLIGHT|SUCCEEDED)\b`)
	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

	stateTones = map[string]string{
		"FAILED":    ansiRed,
		"UNKNOWN":   ansiRed,
		"SUCCEEDED": ansiGreen,
	}
)

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return newWithConsole(cfg, os.Stdout)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelPanic + 1}))
}

func newWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	if cfg.Console.Enabled {
		handler, err := buildHandler(cfg.Console, console, true)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		file, err := os.OpenFile(cfg.File.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("build file handler: open file %q: %w", cfg.File.Path, err)
		}
		handler, err := buildHandler(cfg.File, file, false)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, file)
	}

	if len(handlers) == 0 {
		return nil, nil, fmt.Errorf("no log sinks enabled")
	}

	closeFn := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}
	return slog.New(teeHandler{handlers: handlers}), closeFn, nil
}

// buildHandler creates one sink handler.
// Params: sink level/format, destination writer and console flag (drops time, colours lines).
// Returns: configured slog handler or error.
func buildHandler(sink config.LogSinkConfig, dst io.Writer, console bool) (slog.Handler, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if console {
		opts.ReplaceAttr = func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		}
	}

	switch sink.Format {
	case "line":
		if console {
			dst = &colorLineWriter{dst: dst}
		}
		return slog.NewTextHandler(dst, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", sink.Format)
	}
}

// parseLevel converts configuration level into slog.Level.
// Params: value is lower-case log level name.
// Returns: slog level or error.
func parseLevel(value string) (slog.Level, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "panic":
		return levelPanic, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
}

// teeHandler fan-outs one record to multiple handlers.
type teeHandler struct {
	handlers []slog.Handler
}

// Enabled checks if at least one downstream handler is enabled.
func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range t.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to all enabled downstream handlers.
// Params: ctx context and record to write.
// Returns: first error if any sink fails.
func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range t.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs applies attrs to each downstream handler.
func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

// WithGroup applies group to each downstream handler.
func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, 0, len(t.handlers))
	for _, handler := range t.handlers {
		next = append(next, fn(handler))
	}
	return teeHandler{handlers: next}
}

// colorLineWriter wraps console line logs with level-based color.
type colorLineWriter struct {
	dst io.Writer
}

// Write colors one line according to level markers.
// Params: payload is rendered slog line.
// Returns: bytes written or write error.
func (w *colorLineWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	tone := levelColor(line)
	if tone == "" {
		return w.dst.Write(payload)
	}

	rendered := tone + highlight(line, tone) + ansiReset
	n, err := w.dst.Write([]byte(rendered))
	if n > len(payload) {
		n = len(payload)
	}
	return n, err
}

// levelColor maps rendered level token to ANSI code.
func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"), strings.Contains(line, "level=ERROR+4"):
		return ansiRed
	default:
		return ""
	}
}

type region struct {
	start, end int
	color      string
	rank       int
}

// highlight colours quoted strings, action states and numbers over the base tone.
// Params: rendered line and base colour restored after each token.
// Returns: line with ANSI token highlights.
func highlight(line, base string) string {
	var regions []region
	for _, match := range quotedPattern.FindAllStringIndex(line, -1) {
		regions = append(regions, region{match[0], match[1], ansiGreen, 1})
	}
	for _, match := range statePattern.FindAllStringIndex(line, -1) {
		tone, ok := stateTones[line[match[0]:match[1]]]
		if !ok {
			tone = ansiYellow
		}
		regions = append(regions, region{match[0], match[1], tone, 2})
	}
	for _, match := range numberPattern.FindAllStringIndex(line, -1) {
		regions = append(regions, region{match[0], match[1], ansiYellow, 3})
	}
	if len(regions) == 0 {
		return line
	}
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].start == regions[j].start {
			return regions[i].rank < regions[j].rank
		}
		return regions[i].start < regions[j].start
	})

	var builder strings.Builder
	builder.Grow(len(line) + len(regions)*12)
	cursor := 0
	for _, r := range regions {
		if r.start < cursor {
			continue
		}
		builder.WriteString(line[cursor:r.start])
		builder.WriteString(r.color)
		builder.WriteString(line[r.start:r.end])
		builder.WriteString(ansiReset)
		builder.WriteString(base)
		cursor = r.end
	}
	builder.WriteString(line[cursor:])
	return builder.String()
}
