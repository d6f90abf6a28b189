package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/config"
	"github.com/luki/sensorstream/internal/journal"
)

const helperEnv = "SENSORSTREAM_APP_HELPER"

// TestHelperProcess is re-executed as the external source.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	os.Stdout.Write([]byte{0xA1, 0x10, 0x85})
	time.Sleep(50 * time.Millisecond)
	os.Stdout.Write([]byte{0x19})
	time.Sleep(30 * time.Second)
	os.Exit(0)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:          "dev",
		LogLevel:        slog.LevelInfo,
		RestartPolicy:   "constant",
		RestartDelay:    time.Second,
		RestartMaxDelay: time.Minute,
		MockInterval:    10 * time.Millisecond,
		AlertThreshold:  35,
		AlertCapacity:   10,
		HistorySize:     50,
		JournalDriver:   journal.DriverNone,
	}
}

type running struct {
	url  string
	stop func() error
}

func start(t *testing.T, cfg config.Config) running {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() { done <- Serve(ctx, cfg, logger, ln) }()

	return running{
		url: "http://" + ln.Addr().String(),
		stop: func() error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-time.After(10 * time.Second):
				t.Fatal("Serve did not return")
				return nil
			}
		},
	}
}

func pollSensors(t *testing.T, url string, want func(map[string]aggregate.Sensor) bool) map[string]aggregate.Sensor {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/api/sensors")
		if err == nil {
			var body map[string]aggregate.Sensor
			decErr := json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if decErr == nil && want(body) {
				return body
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sensors never reached the expected state")
	return nil
}

func TestServeSyntheticOnly(t *testing.T) {
	cfg := testConfig()
	cfg.JournalDriver = journal.DriverCSV
	cfg.JournalPath = t.TempDir()

	r := start(t, cfg)
	body := pollSensors(t, r.url, func(m map[string]aggregate.Sensor) bool { return len(m) > 0 })
	for id := range body {
		if len(id) != 1 {
			t.Errorf("synthetic id %q outside 0-9", id)
		}
	}

	resp, err := http.Get(r.url + "/api/source")
	if err != nil {
		t.Fatal(err)
	}
	var src map[string]any
	json.NewDecoder(resp.Body).Decode(&src)
	resp.Body.Close()
	if src["state"] != "generating_mock" {
		t.Errorf("source state = %v, want generating_mock", src["state"])
	}

	if err := r.stop(); err != nil {
		t.Fatalf("Serve returned %v", err)
	}

	days, err := journal.ListDays(cfg.JournalPath)
	if err != nil || len(days) == 0 {
		t.Fatalf("journal days = %v, %v", days, err)
	}
}

func TestServeExternalProcess(t *testing.T) {
	t.Setenv(helperEnv, "1")

	cfg := testConfig()
	cfg.SourceCommand = os.Args[0]
	cfg.SourceArgs = []string{"-test.run=^TestHelperProcess$"}
	cfg.JournalDriver = journal.DriverSQLite
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	r := start(t, cfg)
	body := pollSensors(t, r.url, func(m map[string]aggregate.Sensor) bool { return len(m) == 2 })
	if s := body["33"]; s.Temperature != 16 {
		t.Errorf("sensor 33 = %+v", s)
	}
	if s := body["5"]; s.Temperature != 25 {
		t.Errorf("sensor 5 = %+v", s)
	}

	if err := r.stop(); err != nil {
		t.Fatalf("Serve returned %v", err)
	}
}

func TestServeMissingCommandFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.SourceCommand = "sensorstream-no-such-binary"

	r := start(t, cfg)
	pollSensors(t, r.url, func(m map[string]aggregate.Sensor) bool { return len(m) > 0 })
	if err := r.stop(); err != nil {
		t.Fatalf("Serve returned %v", err)
	}
}
