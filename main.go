// Command sensorstream ingests 2-byte temperature frames from an external
// process, keeps per-sensor aggregates and threshold alerts, and serves
// them over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/luki/sensorstream/internal/app"
	"github.com/luki/sensorstream/internal/config"
	"github.com/luki/sensorstream/internal/journal"
	"github.com/luki/sensorstream/internal/logging"
	"github.com/luki/sensorstream/internal/monitor"
	"github.com/luki/sensorstream/internal/source"
	"github.com/luki/sensorstream/internal/viewer"
)

const appName = "sensorstream"

var version = "dev"

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "%s: unexpected arguments %v\n", cmd, args)
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg)
	case "monitor":
		client := monitor.NewClient(cfg.MonitorURL, cfg.MonitorInterval)
		err = monitor.Run(client, cfg.MonitorInterval, cfg.AlertThreshold)
	case "journal":
		dir := cfg.JournalPath
		if dir == "" {
			dir = journal.DataDir()
		}
		err = viewer.Run(dir, cfg.AlertThreshold)
	case "emit":
		g := source.NewSynthetic()
		g.Interval = cfg.MockInterval
		err = source.EmitFrames(ctx, os.Stdout, g)
	case "help", "-h", "--help":
		printHelp()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	logger.Info("starting",
		"http_addr", cfg.HTTPAddr,
		"source_command", cfg.SourceCommand,
		"restart_policy", cfg.RestartPolicy,
		"journal", cfg.JournalDriver,
		"mqtt", cfg.MQTTEnabled(),
	)
	if err := app.Run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func printHelp() {
	fmt.Print(`Usage: sensorstream [command]

Commands:
  serve     run the ingestion pipeline and HTTP API (default)
  monitor   live dashboard polling MONITOR_URL
  journal   browse the CSV journal in JOURNAL_PATH
  emit      write random reading frames to stdout
  help      show this help

Configuration is read from the environment: HTTP_ADDR, SOURCE_COMMAND,
SOURCE_ARGS, RESTART_POLICY, RESTART_DELAY, RESTART_MAX_DELAY,
RESTART_MAX_ATTEMPTS, MOCK_INTERVAL, ALERT_THRESHOLD, ALERT_CAPACITY,
HISTORY_SIZE, JOURNAL_DRIVER, JOURNAL_PATH, MQTT_BROKER, MQTT_PORT,
MQTT_CLIENT_ID, MQTT_TOPIC_PREFIX, MONITOR_URL, MONITOR_INTERVAL,
APP_ENV and LOG_LEVEL.
`)
}
