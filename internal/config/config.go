// Package config loads service settings from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// SourceCommand is the external reading producer. Empty means no
	// external source; synthetic readings are generated from the start.
	SourceCommand      string
	SourceArgs         []string
	RestartPolicy      string
	RestartDelay       time.Duration
	RestartMaxDelay    time.Duration
	RestartMaxAttempts int
	MockInterval       time.Duration

	AlertThreshold uint8
	AlertCapacity  int
	HistorySize    int

	JournalDriver string
	JournalPath   string

	// MQTTBroker empty disables MQTT publishing.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	MonitorURL      string
	MonitorInterval time.Duration
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        env("HTTP_ADDR", ":3000"),
		RestartPolicy:   strings.ToLower(env("RESTART_POLICY", "constant")),
		JournalDriver:   strings.ToLower(env("JOURNAL_DRIVER", "none")),
		JournalPath:     strings.TrimSpace(os.Getenv("JOURNAL_PATH")),
		MQTTBroker:      strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTClientID:    env("MQTT_CLIENT_ID", "sensorstream-"+uuid.NewString()[:8]),
		MQTTTopicPrefix: strings.Trim(env("MQTT_TOPIC_PREFIX", "sensorstream"), "/"),
		MonitorURL:      strings.TrimRight(env("MONITOR_URL", "http://localhost:3000"), "/"),
	}

	// Unset selects the default command; set but empty disables it.
	if cmd, ok := os.LookupEnv("SOURCE_COMMAND"); ok {
		cfg.SourceCommand = strings.TrimSpace(cmd)
	} else {
		cfg.SourceCommand = "measure_temp"
	}
	if args := strings.Fields(os.Getenv("SOURCE_ARGS")); len(args) > 0 {
		cfg.SourceArgs = args
	}

	switch cfg.RestartPolicy {
	case "constant", "exponential":
	default:
		return Config{}, fmt.Errorf("invalid RESTART_POLICY %q (allowed: constant, exponential)", cfg.RestartPolicy)
	}
	switch cfg.JournalDriver {
	case "none", "csv", "sqlite":
	default:
		return Config{}, fmt.Errorf("invalid JOURNAL_DRIVER %q (allowed: none, csv, sqlite)", cfg.JournalDriver)
	}

	if cfg.RestartDelay, err = positiveDuration("RESTART_DELAY", "5s"); err != nil {
		return Config{}, err
	}
	if cfg.RestartMaxDelay, err = positiveDuration("RESTART_MAX_DELAY", "1m"); err != nil {
		return Config{}, err
	}
	if cfg.MockInterval, err = positiveDuration("MOCK_INTERVAL", "2s"); err != nil {
		return Config{}, err
	}
	if cfg.MonitorInterval, err = positiveDuration("MONITOR_INTERVAL", "2s"); err != nil {
		return Config{}, err
	}

	if cfg.RestartMaxAttempts, err = intInRange("RESTART_MAX_ATTEMPTS", "0", 0, 1<<20); err != nil {
		return Config{}, err
	}
	threshold, err := intInRange("ALERT_THRESHOLD", "35", 1, 255)
	if err != nil {
		return Config{}, err
	}
	cfg.AlertThreshold = uint8(threshold)
	if cfg.AlertCapacity, err = intInRange("ALERT_CAPACITY", "10", 1, 10000); err != nil {
		return Config{}, err
	}
	if cfg.HistorySize, err = intInRange("HISTORY_SIZE", "300", 1, 1_000_000); err != nil {
		return Config{}, err
	}
	if cfg.MQTTPort, err = intInRange("MQTT_PORT", "1883", 1, 65535); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := env(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func intInRange(key, def string, lo, hi int) (int, error) {
	s := env(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, lo, hi, n)
	}
	return n, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
