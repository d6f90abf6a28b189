// Package app wires the ingestion service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/luki/sensorstream/internal/config"
	"github.com/luki/sensorstream/internal/httpapi"
	"github.com/luki/sensorstream/internal/journal"
	"github.com/luki/sensorstream/internal/metrics"
	"github.com/luki/sensorstream/internal/mqtt"
	"github.com/luki/sensorstream/internal/pipeline"
	"github.com/luki/sensorstream/internal/source"
	"github.com/luki/sensorstream/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

// Run starts the pipeline, the source supervisor and the HTTP API, and
// blocks until ctx is cancelled or the HTTP server fails.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	return Serve(ctx, cfg, logger, ln)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	pipe := pipeline.New(pipeline.Options{
		AlertThreshold: cfg.AlertThreshold,
		AlertCapacity:  cfg.AlertCapacity,
		HistorySize:    cfg.HistorySize,
		Logger:         logger.With("component", "pipeline"),
		Metrics:        m,
	})

	jw, err := journal.Open(cfg.JournalDriver, cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if jw != nil {
		defer func() {
			if err := jw.Close(); err != nil {
				logger.Warn("journal close failed", "error", err)
			}
		}()
		pipe.AddObserver(jw)
		logger.Info("journal enabled", "driver", cfg.JournalDriver)
	}

	var mq *mqtt.Client
	if cfg.MQTTEnabled() {
		mq = mqtt.NewClient(cfg, logger.With("component", "mqtt"))
		defer mq.Disconnect()
		pipe.AddObserver(mq)
		go func() {
			if err := mq.Connect(ctx); err != nil && ctx.Err() == nil {
				logger.Error("mqtt connect failed; continuing without MQTT", "error", err)
			}
		}()
	}

	sup := newSupervisor(cfg, logger, m, mq)

	api := httpapi.NewAPI(pipe, sup, logger.With("component", "http"))
	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(api, m.Handler()), logger.With("component", "http"))

	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		_ = pipe.Run(ctx)
	}()

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := sup.Run(ctx, pipe.Events()); err != nil {
			logger.Error("reading source failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}

	<-supDone
	<-pipeDone
	return serveErr
}

func newSupervisor(cfg config.Config, logger *slog.Logger, m *metrics.Metrics, mq *mqtt.Client) *supervisor.Supervisor {
	synthetic := source.NewSynthetic()
	synthetic.Interval = cfg.MockInterval

	restart, err := supervisor.NewBackOff(cfg.RestartPolicy, cfg.RestartDelay, cfg.RestartMaxDelay, cfg.RestartMaxAttempts)
	if err != nil {
		// config.LoadFromEnv validates these; fall back to the defaults.
		logger.Warn("invalid restart policy, using constant delay", "error", err)
		restart = nil
	}

	opts := supervisor.Options{
		Command:  cfg.SourceCommand,
		Fallback: synthetic,
		Restart:  restart,
		Logger:   logger.With("component", "supervisor"),
		Metrics:  m,
	}
	if cfg.SourceCommand != "" {
		opts.Launcher = &source.Process{
			Name:   cfg.SourceCommand,
			Args:   cfg.SourceArgs,
			Logger: logger.With("component", "source"),
		}
	}

	var sup *supervisor.Supervisor
	if mq != nil {
		opts.OnState = func(st supervisor.State) {
			msg := mqtt.SourceMessage{State: st.String(), Command: cfg.SourceCommand}
			if sup != nil {
				msg.Restarts = sup.Restarts()
			}
			if err := mq.PublishSource(msg); err != nil {
				logger.Warn("mqtt source publish failed", "error", err)
			}
		}
	}
	sup = supervisor.New(opts)
	return sup
}
