package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"actiond/internal/config"
)

func TestNewTeesConsoleAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "actiond.log")
	var console bytes.Buffer
	logger, closeFn, err := newWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "warn", Format: "line"},
		File:    config.LogSinkConfig{Enabled: true, Level: "debug", Format: "json", Path: path},
	}, &console)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("tick finished", "selected", 3)
	logger.Warn("perform failed", "state", "FAILED")
	closeFn()

	if strings.Contains(console.String(), "tick finished") {
		t.Fatalf("console must drop info records: %q", console.String())
	}
	if !strings.Contains(console.String(), ansiRed+"FAILED") {
		t.Fatalf("expected highlighted state in %q", console.String())
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(body), `"msg":"tick finished"`) || !strings.Contains(string(body), `"msg":"perform failed"`) {
		t.Fatalf("file sink missing records: %s", body)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(config.LogConfig{Console: config.LogSinkConfig{Enabled: true, Level: "loud", Format: "line"}})
	if err == nil {
		t.Fatalf("expected level error")
	}
	if _, _, err := New(config.LogConfig{}); err == nil {
		t.Fatalf("expected error without sinks")
	}
}
