package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/sensor"
)

func TestSQLiteWritesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, temp := range []uint8{20, 36} {
		if err := s.OnReading(sensor.Reading{ID: 7, Temperature: temp, Time: now}, aggregate.Sensor{}); err != nil {
			t.Fatalf("OnReading: %v", err)
		}
	}
	r := sensor.Reading{ID: 7, Temperature: 36, Time: now}
	if err := s.OnAlert(r, alert.Record{Message: alert.Message(7, 36), Timestamp: now}); err != nil {
		t.Fatalf("OnAlert: %v", err)
	}

	var readings, maxTemp int
	if err := s.db.QueryRow(`SELECT COUNT(*), MAX(temperature) FROM readings WHERE sensor_id = 7`).Scan(&readings, &maxTemp); err != nil {
		t.Fatal(err)
	}
	if readings != 2 || maxTemp != 36 {
		t.Errorf("readings = %d max = %d, want 2 and 36", readings, maxTemp)
	}

	var msg string
	if err := s.db.QueryRow(`SELECT message FROM alerts`).Scan(&msg); err != nil {
		t.Fatal(err)
	}
	if msg != "Sensor #7 exceeded threshold: 36°C" {
		t.Errorf("message = %q", msg)
	}
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	now := time.Now()

	for i := 0; i < 2; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.OnReading(sensor.Reading{ID: 1, Temperature: 20, Time: now}, aggregate.Sensor{}); err != nil {
			t.Fatal(err)
		}
		s.Close()
	}

	s, err := Open(DriverSQLite, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var n int
	if err := s.(*SQLite).db.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		in, want string
	}{
		{filepath.Join(dir, "a.db"), "file:" + filepath.Join(dir, "a.db") + "?_busy_timeout=5000&_journal_mode=WAL"},
		{"file:" + filepath.Join(dir, "b.db") + "?cache=shared", "file:" + filepath.Join(dir, "b.db") + "?cache=shared&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		got, err := buildDSN(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("buildDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
