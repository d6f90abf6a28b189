// Package aggregate keeps running per-sensor temperature statistics.
package aggregate

import (
	"errors"
	"sync"
	"time"

	"github.com/luki/sensorstream/internal/sensor"
)

// ErrNotFound is returned when a sensor id has never been observed.
var ErrNotFound = errors.New("sensor not found")

// Sensor is the running summary for one sensor id.
type Sensor struct {
	Temperature uint8     `json:"temperature"`
	LastUpdate  time.Time `json:"lastUpdate"`
	Min         uint8     `json:"min"`
	Max         uint8     `json:"max"`
	Count       uint64    `json:"count"`
}

// Stats summarises the latest temperature of every tracked sensor.
type Stats struct {
	TotalSensors   int     `json:"totalSensors"`
	AvgTemperature float64 `json:"avgTemperature"`
	MinTemperature uint8   `json:"minTemperature"`
	MaxTemperature uint8   `json:"maxTemperature"`
}

// Store maps sensor ids to their aggregates. Apply is the only mutation.
// Readers get copies and may run concurrently with Apply.
type Store struct {
	mu   sync.RWMutex
	data map[sensor.ID]*Sensor
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[sensor.ID]*Sensor)}
}

// Apply folds one reading into the aggregate for id, creating it on first
// sighting, and returns the updated aggregate.
func (s *Store) Apply(id sensor.ID, temperature uint8, now time.Time) Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.data[id]
	if !ok {
		agg = &Sensor{
			Temperature: temperature,
			LastUpdate:  now,
			Min:         temperature,
			Max:         temperature,
			Count:       1,
		}
		s.data[id] = agg
		return *agg
	}

	agg.Temperature = temperature
	agg.LastUpdate = now
	agg.Min = min(agg.Min, temperature)
	agg.Max = max(agg.Max, temperature)
	agg.Count++
	return *agg
}

// Get returns the aggregate for id.
func (s *Store) Get(id sensor.ID) (Sensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.data[id]
	if !ok {
		return Sensor{}, false
	}
	return *agg, true
}

// Snapshot returns a copy of every aggregate.
func (s *Store) Snapshot() map[sensor.ID]Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[sensor.ID]Sensor, len(s.data))
	for id, agg := range s.data {
		out[id] = *agg
	}
	return out
}

// Len returns the number of tracked sensors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Stats computes summary statistics over the current temperatures. All
// fields are zero when no sensor has been seen.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return computeStats(s.data)
}

func computeStats(data map[sensor.ID]*Sensor) Stats {
	if len(data) == 0 {
		return Stats{}
	}
	st := Stats{
		TotalSensors:   len(data),
		MinTemperature: 255,
	}
	sum := 0
	for _, agg := range data {
		sum += int(agg.Temperature)
		st.MinTemperature = min(st.MinTemperature, agg.Temperature)
		st.MaxTemperature = max(st.MaxTemperature, agg.Temperature)
	}
	st.AvgTemperature = float64(sum) / float64(len(data))
	return st
}
