// Package history keeps a short ring buffer of recent readings per sensor,
// used for sparklines and the history endpoint.
package history

import (
	"math"
	"sync"
	"time"

	"github.com/luki/sensorstream/internal/sensor"
)

// Point is a single data point in the temperature history.
type Point struct {
	Temp float64   `json:"temperature"`
	Time time.Time `json:"time"`
}

// Buffer stores a ring buffer of temperature readings for one sensor.
// Last, Avg and Range cover only the points currently retained.
type Buffer struct {
	points []Point
	start  int
	max    int
}

// NewBuffer creates a new history ring buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		points: make([]Point, 0, capacity),
		max:    capacity,
	}
}

// Push adds a new temperature reading, overwriting the oldest when full.
func (b *Buffer) Push(temp float64, t time.Time) {
	p := Point{Temp: temp, Time: t}
	if len(b.points) < b.max {
		b.points = append(b.points, p)
		return
	}
	b.points[b.start] = p
	b.start = (b.start + 1) % b.max
}

// Len returns the number of retained points.
func (b *Buffer) Len() int {
	return len(b.points)
}

// Last returns the most recent temperature, or 0 if empty.
func (b *Buffer) Last() float64 {
	if len(b.points) == 0 {
		return 0
	}
	return b.at(len(b.points) - 1).Temp
}

// Avg returns the average temperature across retained points.
func (b *Buffer) Avg() float64 {
	if len(b.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range b.points {
		sum += p.Temp
	}
	return sum / float64(len(b.points))
}

// Range returns the lowest and highest retained temperature.
func (b *Buffer) Range() (lo, hi float64) {
	if len(b.points) == 0 {
		return 0, 0
	}
	lo, hi = math.MaxFloat64, -math.MaxFloat64
	for _, p := range b.points {
		lo = math.Min(lo, p.Temp)
		hi = math.Max(hi, p.Temp)
	}
	return lo, hi
}

// LastN returns up to n of the most recent points, oldest first.
func (b *Buffer) LastN(n int) []Point {
	if n <= 0 || len(b.points) == 0 {
		return nil
	}
	if n > len(b.points) {
		n = len(b.points)
	}
	out := make([]Point, n)
	first := len(b.points) - n
	for i := range out {
		out[i] = b.at(first + i)
	}
	return out
}

// at returns the i-th point in chronological order.
func (b *Buffer) at(i int) Point {
	return b.points[(b.start+i)%len(b.points)]
}

// Store manages histories for all sensors. It is safe for one writer and
// many readers.
type Store struct {
	mu       sync.RWMutex
	data     map[sensor.ID]*Buffer
	capacity int
}

// NewStore creates a new store with the given per-sensor capacity.
func NewStore(capacity int) *Store {
	return &Store{
		data:     make(map[sensor.ID]*Buffer),
		capacity: capacity,
	}
}

// Record adds a reading for the given sensor.
func (s *Store) Record(id sensor.ID, temp uint8, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	if !ok {
		b = NewBuffer(s.capacity)
		s.data[id] = b
	}
	b.Push(float64(temp), t)
}

// Window summarises the points retained for one sensor.
type Window struct {
	Points int     `json:"points"`
	Last   float64 `json:"last"`
	Avg    float64 `json:"avg"`
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
}

// Window returns the summary for id, or false when nothing is retained.
func (s *Store) Window(id sensor.ID) (Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok || b.Len() == 0 {
		return Window{}, false
	}
	lo, hi := b.Range()
	return Window{Points: b.Len(), Last: b.Last(), Avg: b.Avg(), Low: lo, High: hi}, true
}

// LastN returns up to n recent points for id, oldest first. A non-positive
// n returns everything retained.
func (s *Store) LastN(id sensor.ID, n int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok {
		return nil
	}
	if n <= 0 {
		n = b.Len()
	}
	return b.LastN(n)
}
