// Package alert keeps a bounded, newest-first log of threshold crossings.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/luki/sensorstream/internal/sensor"
)

const (
	// Threshold is the default alerting temperature in °C (inclusive).
	Threshold = 35
	// Capacity is the default number of alerts retained.
	Capacity = 10
)

// Record is one raised alert.
type Record struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Log holds the most recent alerts, newest first. Records are never edited
// or reordered once inserted; the oldest is dropped when the log is full.
type Log struct {
	threshold uint8
	capacity  int

	mu      sync.RWMutex
	records []Record
}

// NewLog creates a log that alerts at temperatures >= threshold and keeps
// at most capacity records. A capacity below 1 is treated as 1.
func NewLog(threshold uint8, capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		threshold: threshold,
		capacity:  capacity,
		records:   make([]Record, 0, capacity+1),
	}
}

// Threshold returns the alerting temperature.
func (l *Log) Threshold() uint8 {
	return l.threshold
}

// Message formats the alert text for a reading.
func Message(id sensor.ID, temperature uint8) string {
	return fmt.Sprintf("%s exceeded threshold: %d°C", id, temperature)
}

// Check records an alert when temperature reaches the threshold. It returns
// the new record and true if one was added.
func (l *Log) Check(id sensor.ID, temperature uint8, now time.Time) (Record, bool) {
	if temperature < l.threshold {
		return Record{}, false
	}
	rec := Record{Message: Message(id, temperature), Timestamp: now}
	l.Add(rec)
	return rec, true
}

// Add inserts rec at the front, evicting the oldest record on overflow.
func (l *Log) Add(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, Record{})
	copy(l.records[1:], l.records)
	l.records[0] = rec
	if len(l.records) > l.capacity {
		l.records = l.records[:l.capacity]
	}
}

// Snapshot returns a copy of the log, newest first.
func (l *Log) Snapshot() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
