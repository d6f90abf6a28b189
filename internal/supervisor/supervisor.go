// Package supervisor keeps a reading source alive. It runs the external
// process, restarts it after it exits, and switches to synthetic readings
// when the process cannot be launched.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/luki/sensorstream/internal/metrics"
	"github.com/luki/sensorstream/internal/source"
)

// DefaultRestartDelay is the pause between a process exit and the next launch.
const DefaultRestartDelay = 5 * time.Second

// Launcher starts one instance of the external process.
type Launcher interface {
	Start(ctx context.Context) (source.Stream, error)
}

// Options configures a Supervisor.
type Options struct {
	// Launcher starts the external process. Nil means there is no external
	// source and the fallback runs immediately.
	Launcher Launcher
	// Command names the external process in logs and status reports.
	Command string
	// Fallback runs once the external process cannot be launched.
	Fallback source.Source
	// Restart schedules the delay before each restart. Defaults to a
	// constant DefaultRestartDelay.
	Restart backoff.BackOff
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// OnState is called on every transition, from the Run goroutine.
	OnState func(State)
}

// Supervisor owns the lifecycle of the active reading source. Only one
// source writes to the output channel at any time.
type Supervisor struct {
	launcher Launcher
	command  string
	fallback source.Source
	restart  backoff.BackOff
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onState  func(State)

	state    atomic.Int32
	restarts atomic.Int64
}

// New returns a supervisor in the Starting state.
func New(o Options) *Supervisor {
	s := &Supervisor{
		launcher: o.Launcher,
		command:  o.Command,
		fallback: o.Fallback,
		restart:  o.Restart,
		logger:   o.Logger,
		metrics:  o.Metrics,
		onState:  o.OnState,
	}
	if s.restart == nil {
		s.restart = backoff.NewConstantBackOff(DefaultRestartDelay)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.state.Store(int32(Starting))
	return s
}

// State reports the current lifecycle state. Safe for concurrent use.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Restarts reports how many times the process has been relaunched after
// an exit.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

// Command returns the configured external command, empty when none.
func (s *Supervisor) Command() string {
	return s.command
}

// Run drives the source until ctx is cancelled. It returns nil on
// cancellation and an error only when the fallback source fails.
func (s *Supervisor) Run(ctx context.Context, out chan<- source.Event) error {
	defer s.setState(Stopped)
	s.restart.Reset()

	if s.launcher == nil {
		s.logger.Info("no external source configured, generating synthetic readings")
		return s.runFallback(ctx, out)
	}

	var lastDelay time.Duration
	for {
		s.setState(Starting)
		stream, err := s.launcher.Start(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("failed to start source process, generating synthetic readings",
				"command", s.command, "error", err)
			return s.runFallback(ctx, out)
		}

		if s.metrics != nil {
			s.metrics.ProcessStarts.Inc()
		}
		s.setState(Running)
		s.logger.Info("source process started", "command", s.command, "pid", stream.Pid())

		if err := source.Send(ctx, out, source.Event{Reset: true}); err != nil {
			// Pump still reaps the process after cancellation.
			_ = stream.Pump(ctx, out)
			return nil
		}
		started := time.Now()
		err = stream.Pump(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		uptime := time.Since(started)
		s.logExit(stream.Pid(), err)

		// A run that outlived the last delay counts as healthy and starts
		// a fresh restart budget.
		if lastDelay > 0 && uptime > lastDelay {
			s.logger.Debug("source process was healthy, resetting restart policy", "uptime", uptime)
			s.restart.Reset()
		}
		delay := s.restart.NextBackOff()
		if delay == backoff.Stop {
			s.logger.Error("restart attempts exhausted, generating synthetic readings",
				"command", s.command, "restarts", s.Restarts())
			return s.runFallback(ctx, out)
		}

		lastDelay = delay
		s.setState(Restarting)
		s.logger.Info("restarting source process", "command", s.command, "delay", delay)
		if !sleep(ctx, delay) {
			return nil
		}
		s.restarts.Add(1)
	}
}

func (s *Supervisor) runFallback(ctx context.Context, out chan<- source.Event) error {
	s.setState(GeneratingMock)
	if s.fallback == nil {
		<-ctx.Done()
		return nil
	}
	err := s.fallback.Run(ctx, out)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Supervisor) logExit(pid int, err error) {
	code := -1
	var exitErr *source.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}
	s.logger.Warn("source process exited", "command", s.command, "pid", pid, "code", code)
	if s.metrics != nil {
		s.metrics.ProcessExits.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func (s *Supervisor) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.Debug("source state changed", "from", prev, "to", st)
	s.metrics.SetSourceState(st.String(), StateNames())
	if s.onState != nil {
		s.onState(st)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
