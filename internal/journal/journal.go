// Package journal appends applied readings and raised alerts to disk. It
// is write-only from the pipeline's point of view; nothing is replayed on
// start-up.
package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/sensor"
)

// Journal drivers.
const (
	DriverNone   = "none"
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
)

const (
	dirName        = ".sensorstream"
	sqliteFileName = "journal.db"
)

// Writer is a journal backend. It satisfies pipeline.Observer.
type Writer interface {
	Name() string
	OnReading(r sensor.Reading, agg aggregate.Sensor) error
	OnAlert(r sensor.Reading, rec alert.Record) error
	Close() error
}

// Open returns the backend for driver, or nil for DriverNone. An empty
// path selects the default location under the user's home directory.
func Open(driver, path string) (Writer, error) {
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverCSV:
		if path == "" {
			path = DataDir()
		}
		d, err := NewDiskStore(path)
		if err != nil {
			return nil, err
		}
		return d, nil
	case DriverSQLite:
		if path == "" {
			path = filepath.Join(DataDir(), sqliteFileName)
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
}

// DataDir returns the default journal directory.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}
