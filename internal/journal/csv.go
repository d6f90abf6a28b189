package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/sensor"
)

const (
	timeLayout = "2006-01-02T15:04:05.000"
	fileLayout = "2006-01-02"

	KindReading = "reading"
	KindAlert   = "alert"
)

var header = []string{"time", "kind", "sensor", "temp", "message"}

// DiskStore writes the journal as daily CSV files named YYYY-MM-DD.csv:
//
//	time,kind,sensor,temp,message
type DiskStore struct {
	dir string

	mu      sync.Mutex
	current *os.File
	writer  *csv.Writer
	curDate string
}

// Entry is a single row from a journal file.
type Entry struct {
	Time    time.Time
	Kind    string
	Sensor  sensor.ID
	Temp    uint8
	Message string
}

// NewDiskStore creates a CSV journal in dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Name() string { return "journal-csv" }

func (d *DiskStore) OnReading(r sensor.Reading, _ aggregate.Sensor) error {
	return d.write(r.Time, KindReading, r.ID, r.Temperature, "")
}

func (d *DiskStore) OnAlert(r sensor.Reading, rec alert.Record) error {
	return d.write(rec.Timestamp, KindAlert, r.ID, r.Temperature, rec.Message)
}

func (d *DiskStore) write(t time.Time, kind string, id sensor.ID, temp uint8, msg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t = t.Local()
	if err := d.rotate(t.Format(fileLayout)); err != nil {
		return err
	}
	d.writer.Write([]string{
		t.Format(timeLayout),
		kind,
		strconv.Itoa(int(id)),
		strconv.Itoa(int(temp)),
		msg,
	})
	d.writer.Flush()
	return d.writer.Error()
}

// rotate switches to the file for dateStr. Callers hold d.mu.
func (d *DiskStore) rotate(dateStr string) error {
	if d.curDate == dateStr && d.current != nil {
		return nil
	}
	d.closeLocked()

	path := filepath.Join(d.dir, dateStr+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	d.current = f
	d.writer = csv.NewWriter(f)
	d.curDate = dateStr

	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		d.writer.Write(header)
	}
	return nil
}

// Close flushes and closes the current file.
func (d *DiskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DiskStore) closeLocked() error {
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.current == nil {
		return nil
	}
	err := d.current.Close()
	d.current = nil
	d.writer = nil
	return err
}

// ListDays returns available journal dates, newest first.
func ListDays(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for i := len(entries) - 1; i >= 0; i-- {
		name := entries[i].Name()
		if strings.HasSuffix(name, ".csv") {
			days = append(days, strings.TrimSuffix(name, ".csv"))
		}
	}
	return days, nil
}

// LoadDay reads every entry from one day's file in dir.
func LoadDay(dir, day string) ([]Entry, error) {
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadFile reads every entry from a journal file. Malformed rows are
// skipped.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i, row := range records {
		if i == 0 && len(row) > 0 && row[0] == "time" {
			continue
		}
		if len(row) < len(header) {
			continue
		}

		t, err := time.ParseInLocation(timeLayout, row[0], time.Local)
		if err != nil {
			continue
		}
		id, err := sensor.ParseID(row[2])
		if err != nil {
			continue
		}
		temp, err := strconv.ParseUint(row[3], 10, 8)
		if err != nil {
			continue
		}

		entries = append(entries, Entry{
			Time:    t,
			Kind:    row[1],
			Sensor:  id,
			Temp:    uint8(temp),
			Message: row[4],
		})
	}

	return entries, nil
}
