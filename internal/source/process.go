package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultChunkSize = 4096
	stopGrace        = 200 * time.Millisecond
)

// Process launches an external command and streams its stdout.
type Process struct {
	Name      string
	Args      []string
	Env       []string // appended to the parent environment
	ChunkSize int
	Logger    *slog.Logger
}

// Stream is a started source that produces events until it ends.
type Stream interface {
	// Pump forwards output to out and blocks until the producer exits or
	// ctx is cancelled. The returned error describes how it ended.
	Pump(ctx context.Context, out chan<- Event) error
	// Pid identifies the running producer for logs.
	Pid() int
}

// LaunchError means the command could not be started at all.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitError reports that a started process ended. Code is -1 when the
// process was killed by a signal.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("process exited with code %d", e.Code)
	}
	return fmt.Sprintf("process exited with code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Start launches the command. A failure to start is returned as a
// *LaunchError. The process is tied to ctx and is killed when it ends.
func (p *Process) Start(ctx context.Context) (Stream, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGrace
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Name: p.Name, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Name: p.Name, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Name: p.Name, Err: err}
	}

	size := p.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	return &processStream{
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		chunkSize: size,
		logger:    logger.With("pid", cmd.Process.Pid, "command", p.Name),
	}, nil
}

type processStream struct {
	cmd       *exec.Cmd
	stdout    io.Reader
	stderr    io.Reader
	chunkSize int
	logger    *slog.Logger
}

func (s *processStream) Pid() int {
	return s.cmd.Process.Pid
}

func (s *processStream) Pump(ctx context.Context, out chan<- Event) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logStderr()
	}()

	readErr := s.pumpStdout(ctx, out)
	wg.Wait()
	waitErr := s.cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		s.logger.Warn("stdout read failed", "error", readErr)
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return &ExitError{Code: 0}
	case errors.As(waitErr, &exitErr):
		return &ExitError{Code: exitErr.ExitCode(), Err: waitErr}
	default:
		return &ExitError{Code: -1, Err: waitErr}
	}
}

func (s *processStream) pumpStdout(ctx context.Context, out chan<- Event) error {
	buf := make([]byte, s.chunkSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.logger.Debug("subprocess output", "bytes", n)
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := Send(ctx, out, Event{Chunk: chunk}); sendErr != nil {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// logStderr drains stderr in fixed-size chunks so a child that never
// writes a newline cannot fill the pipe and stall.
func (s *processStream) logStderr() {
	buf := make([]byte, s.chunkSize)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			text := strings.TrimRight(string(buf[:n]), "\r\n")
			if text != "" {
				s.logger.Warn("process error output", "output", text)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("stderr read ended", "error", err)
			}
			return
		}
	}
}
