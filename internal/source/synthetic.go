package source

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/luki/sensorstream/internal/sensor"
)

const (
	// DefaultInterval is the synthetic reading period.
	DefaultInterval = 2000 * time.Millisecond
	// DefaultSensors is the number of distinct ids the generator uses.
	DefaultSensors = 10

	baseTemp     = 20.0
	varianceLow  = -5.0
	varianceSpan = 30.0
)

// Synthetic produces random readings on a fixed period. It stands in for
// the external process when none can be started.
type Synthetic struct {
	Interval time.Duration
	Sensors  int
	Rand     *rand.Rand
	Now      func() time.Time
}

// NewSynthetic returns a generator with the default period and sensor count.
func NewSynthetic() *Synthetic {
	return &Synthetic{
		Interval: DefaultInterval,
		Sensors:  DefaultSensors,
	}
}

// Next returns one random reading: id in [0, Sensors) and a temperature of
// round(20 + U(-5, 25)) clamped to 0..255.
func (g *Synthetic) Next() sensor.Reading {
	n := g.Sensors
	if n <= 0 {
		n = DefaultSensors
	}
	if n > int(sensor.MaxID)+1 {
		n = int(sensor.MaxID) + 1
	}

	id := g.intN(n)
	variance := g.float64()*varianceSpan + varianceLow
	temp := math.Round(baseTemp + variance)
	temp = math.Max(0, math.Min(255, temp))

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return sensor.Reading{
		ID:          sensor.ID(id),
		Temperature: uint8(temp),
		Time:        now(),
	}
}

// Run emits one reading per Interval until ctx is cancelled.
func (g *Synthetic) Run(ctx context.Context, out chan<- Event) error {
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r := g.Next()
			if err := Send(ctx, out, Event{Reading: &r}); err != nil {
				return err
			}
		}
	}
}

func (g *Synthetic) intN(n int) int {
	if g.Rand != nil {
		return g.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func (g *Synthetic) float64() float64 {
	if g.Rand != nil {
		return g.Rand.Float64()
	}
	return rand.Float64()
}
