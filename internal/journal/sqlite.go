package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/sensor"
)

const writeTimeout = 2 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sensor_id   INTEGER NOT NULL,
	temperature INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_sensor_time ON readings (sensor_id, recorded_at);
CREATE TABLE IF NOT EXISTS alerts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sensor_id   INTEGER NOT NULL,
	temperature INTEGER NOT NULL,
	message     TEXT NOT NULL,
	raised_at   TIMESTAMP NOT NULL
);`

// SQLite writes the journal to a SQLite database with one table for
// readings and one for alerts.
type SQLite struct {
	db            *sql.DB
	insertReading *sql.Stmt
	insertAlert   *sql.Stmt
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One writer; the pipeline calls in from a single goroutine anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db schema: %w", err)
	}

	s := &SQLite{db: db}
	if s.insertReading, err = db.Prepare(
		`INSERT INTO readings (sensor_id, temperature, recorded_at) VALUES (?, ?, ?)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare readings insert: %w", err)
	}
	if s.insertAlert, err = db.Prepare(
		`INSERT INTO alerts (sensor_id, temperature, message, raised_at) VALUES (?, ?, ?, ?)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare alerts insert: %w", err)
	}
	return s, nil
}

func (s *SQLite) Name() string { return "journal-sqlite" }

func (s *SQLite) OnReading(r sensor.Reading, _ aggregate.Sensor) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.insertReading.ExecContext(ctx, int(r.ID), int(r.Temperature), r.Time.UTC()); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *SQLite) OnAlert(r sensor.Reading, rec alert.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.insertAlert.ExecContext(ctx, int(r.ID), int(r.Temperature), rec.Message, rec.Timestamp.UTC()); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Close releases the prepared statements and the database.
func (s *SQLite) Close() error {
	s.insertReading.Close()
	s.insertAlert.Close()
	return s.db.Close()
}

func buildDSN(path string) (string, error) {
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
