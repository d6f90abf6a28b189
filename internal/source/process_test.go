package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

// TestHelperProcess is re-executed by the tests below as the external
// source. It does nothing in a normal test run.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SENSORSTREAM_HELPER") != "1" {
		return
	}
	if os.Getenv("SENSORSTREAM_HELPER_MODE") == "stderr-flood" {
		os.Stderr.Write(bytes.Repeat([]byte{'x'}, 256<<10))
		os.Stdout.Write([]byte{0xA1, 0x10})
		os.Exit(1)
	}
	os.Stdout.Write([]byte{0xA1})
	os.Stdout.Sync()
	time.Sleep(10 * time.Millisecond)
	os.Stdout.Write([]byte{0x10, 0x85, 0x19})
	fmt.Fprintln(os.Stderr, "sensor bus glitch")
	os.Exit(3)
}

func helperProcess() *Process {
	return &Process{
		Name: os.Args[0],
		Args: []string{"-test.run=^TestHelperProcess$"},
		Env:  []string{"SENSORSTREAM_HELPER=1"},
	}
}

func TestProcessLaunchFailure(t *testing.T) {
	p := &Process{Name: "sensorstream-no-such-binary"}
	_, err := p.Start(context.Background())

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("Start err = %v, want *LaunchError", err)
	}
	if launchErr.Name != "sensorstream-no-such-binary" {
		t.Errorf("LaunchError.Name = %q", launchErr.Name)
	}
}

func TestProcessStreamsStdoutAndExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := helperProcess().Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stream.Pid() <= 0 {
		t.Errorf("Pid() = %d", stream.Pid())
	}

	out := make(chan Event, 64)
	pumpErr := stream.Pump(ctx, out)
	close(out)

	var got []byte
	for ev := range out {
		got = append(got, ev.Chunk...)
	}
	want := []byte{0xA1, 0x10, 0x85, 0x19}
	if !bytes.Contains(got, want) {
		t.Errorf("stdout = % X, want it to contain % X", got, want)
	}

	var exitErr *ExitError
	if !errors.As(pumpErr, &exitErr) {
		t.Fatalf("Pump err = %v, want *ExitError", pumpErr)
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}
}

func TestProcessCancel(t *testing.T) {
	p := &Process{Name: "sleep", Args: []string{"30"}}
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := p.Start(ctx)
	if err != nil {
		t.Skipf("sleep not available: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- stream.Pump(ctx, make(chan Event))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Pump err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Pump did not return after cancel")
	}
}

func TestProcessLongStderrWithoutNewline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	p := helperProcess()
	p.Env = append(p.Env, "SENSORSTREAM_HELPER_MODE=stderr-flood")
	p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	stream, err := p.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	out := make(chan Event, 64)
	done := make(chan error, 1)
	go func() { done <- stream.Pump(ctx, out) }()

	var pumpErr error
	select {
	case pumpErr = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Pump blocked after the child wrote a long stderr line")
	}
	close(out)

	var got []byte
	for ev := range out {
		got = append(got, ev.Chunk...)
	}
	if !bytes.Contains(got, []byte{0xA1, 0x10}) {
		t.Errorf("stdout = % X, want it to contain A1 10", got)
	}

	var exitErr *ExitError
	if !errors.As(pumpErr, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("Pump err = %v, want exit code 1", pumpErr)
	}
}
