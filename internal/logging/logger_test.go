package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/luki/sensorstream/internal/config"
)

func TestNewLoggerJSONInProd(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}
	logger := newLogger(&buf, cfg, "1.2.3", "sensorstream")

	logger.Debug("hidden")
	logger.Info("source process started", "pid", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	for key, want := range map[string]any{
		"msg":     "source process started",
		"app":     "sensorstream",
		"version": "1.2.3",
		"env":     "prod",
		"pid":     float64(42),
	} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %v", key, rec[key], want)
		}
	}
}

func TestNewLoggerTintInDev(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}
	logger := newLogger(&buf, cfg, "dev", "sensorstream")

	logger.Debug("reading", "sensor", 3)
	out := buf.String()
	if !strings.Contains(out, "reading") || !strings.Contains(out, "sensorstream") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.HasPrefix(out, "{") {
		t.Errorf("dev output should not be JSON: %q", out)
	}
}
