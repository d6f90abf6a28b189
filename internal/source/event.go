// Package source provides the producers that feed the ingestion pipeline:
// an external process whose stdout carries wire frames, and a synthetic
// generator that emits already-decoded readings on a timer.
package source

import (
	"context"

	"github.com/luki/sensorstream/internal/sensor"
)

// Event is one unit of work for the pipeline. Exactly one field is set.
type Event struct {
	// Chunk is raw stdout from the external process, in arrival order.
	Chunk []byte
	// Reading is a synthetic reading that bypasses frame decoding.
	Reading *sensor.Reading
	// Reset marks the start of a new process instance; any partial frame
	// from the previous instance must be discarded.
	Reset bool
}

// Source is a producer that runs until ctx is cancelled or it fails.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// Send delivers ev unless ctx is cancelled first.
func Send(ctx context.Context, out chan<- Event, ev Event) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
