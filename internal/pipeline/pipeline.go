// Package pipeline owns the ingestion state: the aggregate store, the
// alert log and the per-sensor history. A single goroutine applies every
// event, so readers only ever see whole readings.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/history"
	"github.com/luki/sensorstream/internal/metrics"
	"github.com/luki/sensorstream/internal/protocol"
	"github.com/luki/sensorstream/internal/sensor"
	"github.com/luki/sensorstream/internal/source"
)

const (
	defaultBuffer      = 64
	defaultHistorySize = 300

	originProcess   = "process"
	originSynthetic = "synthetic"
)

// Observer is notified after each applied reading and raised alert.
// Errors are logged and never stop ingestion.
type Observer interface {
	Name() string
	OnReading(r sensor.Reading, agg aggregate.Sensor) error
	OnAlert(r sensor.Reading, rec alert.Record) error
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	AlertThreshold uint8
	AlertCapacity  int
	HistorySize    int
	// Buffer is the capacity of the events channel.
	Buffer  int
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Pipeline decodes source events and maintains the derived state.
type Pipeline struct {
	sensors *aggregate.Store
	alerts  *alert.Log
	history *history.Store
	asm     protocol.Reassembler

	observers []Observer
	events    chan source.Event
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates an empty pipeline.
func New(o Options) *Pipeline {
	threshold := o.AlertThreshold
	if threshold == 0 {
		threshold = alert.Threshold
	}
	capacity := o.AlertCapacity
	if capacity <= 0 {
		capacity = alert.Capacity
	}
	size := o.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	buf := o.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}

	p := &Pipeline{
		sensors: aggregate.NewStore(),
		alerts:  alert.NewLog(threshold, capacity),
		history: history.NewStore(size),
		events:  make(chan source.Event, buf),
		logger:  o.Logger,
		metrics: o.Metrics,
		now:     o.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// AddObserver registers o. It must be called before Run.
func (p *Pipeline) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

// Events is the channel sources write to.
func (p *Pipeline) Events() chan<- source.Event {
	return p.events
}

// Run applies events until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			p.Handle(ev)
		}
	}
}

// Handle applies one event. Callers other than Run must not invoke it
// concurrently with Run.
func (p *Pipeline) Handle(ev source.Event) {
	switch {
	case ev.Reset:
		if n := p.asm.Pending(); n > 0 {
			p.logger.Debug("discarding partial frame from previous source", "bytes", n)
		}
		p.asm.Reset()
	case ev.Reading != nil:
		if !ev.Reading.ID.Valid() {
			p.logger.Warn("dropping reading with out-of-range sensor id", "sensor", int(ev.Reading.ID))
			break
		}
		p.apply(*ev.Reading, originSynthetic)
	case len(ev.Chunk) > 0:
		if p.metrics != nil {
			p.metrics.ChunksReceived.Inc()
			p.metrics.BytesReceived.Add(float64(len(ev.Chunk)))
		}
		p.asm.Feed(ev.Chunk, p.handleFrame)
	}
	if p.metrics != nil {
		p.metrics.CarryBytes.Set(float64(p.asm.Pending()))
	}
}

func (p *Pipeline) handleFrame(f protocol.Frame) {
	if p.metrics != nil {
		p.metrics.FramesDecoded.WithLabelValues(strconv.Itoa(int(f.Type))).Inc()
	}
	if !f.IsReading() {
		p.logger.Debug("ignoring frame", "type", f.Type, "sensor", f.SensorID)
		return
	}
	p.apply(sensor.Reading{ID: f.SensorID, Temperature: f.Temperature, Time: p.now()}, originProcess)
}

func (p *Pipeline) apply(r sensor.Reading, origin string) {
	if r.Time.IsZero() {
		r.Time = p.now()
	}
	agg := p.sensors.Apply(r.ID, r.Temperature, r.Time)
	p.history.Record(r.ID, r.Temperature, r.Time)
	p.logger.Debug("reading", "sensor", r.ID, "temperature", r.Temperature, "origin", origin)

	if p.metrics != nil {
		p.metrics.ReadingsApplied.WithLabelValues(origin).Inc()
		p.metrics.SensorsTracked.Set(float64(p.sensors.Len()))
	}

	for _, o := range p.observers {
		if err := o.OnReading(r, agg); err != nil {
			p.observerFailed(o, err)
		}
	}

	rec, raised := p.alerts.Check(r.ID, r.Temperature, r.Time)
	if !raised {
		return
	}
	p.logger.Warn("ALERT: "+rec.Message, "sensor", r.ID, "temperature", r.Temperature)
	if p.metrics != nil {
		p.metrics.AlertsRaised.Inc()
	}
	for _, o := range p.observers {
		if err := o.OnAlert(r, rec); err != nil {
			p.observerFailed(o, err)
		}
	}
}

func (p *Pipeline) observerFailed(o Observer, err error) {
	p.logger.Warn("observer failed", "observer", o.Name(), "error", err)
	if p.metrics != nil {
		p.metrics.ObserverErrors.WithLabelValues(o.Name()).Inc()
	}
}
