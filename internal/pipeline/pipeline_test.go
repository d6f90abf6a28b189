package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/metrics"
	"github.com/luki/sensorstream/internal/protocol"
	"github.com/luki/sensorstream/internal/sensor"
	"github.com/luki/sensorstream/internal/source"
)

var epoch = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(o Options) *Pipeline {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = func() time.Time { return epoch }
	}
	return New(o)
}

func chunk(b ...byte) source.Event {
	return source.Event{Chunk: b}
}

func reading(id sensor.ID, temp uint8) source.Event {
	return source.Event{Reading: &sensor.Reading{ID: id, Temperature: temp, Time: epoch}}
}

type recordingObserver struct {
	mu       sync.Mutex
	readings []sensor.Reading
	alerts   []alert.Record
	err      error
}

func (r *recordingObserver) Name() string { return "recorder" }

func (r *recordingObserver) OnReading(rd sensor.Reading, _ aggregate.Sensor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, rd)
	return r.err
}

func (r *recordingObserver) OnAlert(_ sensor.Reading, rec alert.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, rec)
	return r.err
}

func TestChunkBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		events []source.Event
	}{
		{"two chunks", []source.Event{chunk(0xA1, 0x10), chunk(0x85, 0x19)}},
		{"single chunk", []source.Event{chunk(0xA1, 0x10, 0x85, 0x19)}},
		{"byte at a time", []source.Event{chunk(0xA1), chunk(0x10), chunk(0x85), chunk(0x19)}},
		{"split across frames", []source.Event{chunk(0xA1), chunk(0x10, 0x85), chunk(0x19)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			p := newTestPipeline(Options{})
			p.AddObserver(obs)
			for _, ev := range tt.events {
				p.Handle(ev)
			}

			if len(obs.readings) != 2 {
				t.Fatalf("got %d readings, want 2", len(obs.readings))
			}
			if r := obs.readings[0]; r.ID != 33 || r.Temperature != 16 {
				t.Errorf("first reading = %+v, want sensor 33 at 16", r)
			}
			if r := obs.readings[1]; r.ID != 5 || r.Temperature != 25 {
				t.Errorf("second reading = %+v, want sensor 5 at 25", r)
			}
		})
	}
}

func TestNonReadingFramesIgnored(t *testing.T) {
	p := newTestPipeline(Options{})
	for _, typ := range []uint8{0, 1, 3} {
		f := protocol.Encode(protocol.Frame{Type: typ, SensorID: 7, Temperature: 50})
		p.Handle(chunk(f[:]...))
	}
	if n := len(p.Sensors()); n != 0 {
		t.Errorf("sensors = %d, want 0", n)
	}
	if n := len(p.Alerts()); n != 0 {
		t.Errorf("alerts = %d, want 0", n)
	}
}

func TestResetDropsPartialFrame(t *testing.T) {
	p := newTestPipeline(Options{})
	p.Handle(chunk(0xA1))
	p.Handle(source.Event{Reset: true})
	f := protocol.EncodeReading(5, 25)
	p.Handle(chunk(f[:]...))

	got := p.Sensors()
	if len(got) != 1 {
		t.Fatalf("sensors = %v, want only sensor 5", got)
	}
	if s, err := p.Sensor(5); err != nil || s.Temperature != 25 {
		t.Errorf("Sensor(5) = %+v, %v", s, err)
	}
}

func TestAggregateSequence(t *testing.T) {
	p := newTestPipeline(Options{})
	for _, temp := range []uint8{10, 30, 5} {
		p.Handle(reading(12, temp))
	}

	s, err := p.Sensor(12)
	if err != nil {
		t.Fatal(err)
	}
	if s.Temperature != 5 || s.Min != 5 || s.Max != 30 || s.Count != 3 {
		t.Errorf("aggregate = %+v, want temp 5 min 5 max 30 count 3", s)
	}
	if got := p.History(12, 0); len(got) != 3 || got[2].Temp != 5 {
		t.Errorf("history = %+v", got)
	}
}

func TestUnknownSensor(t *testing.T) {
	p := newTestPipeline(Options{})
	if _, err := p.Sensor(9); !errors.Is(err, aggregate.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOutOfRangeReadingDropped(t *testing.T) {
	p := newTestPipeline(Options{})
	p.Handle(reading(64, 50))
	p.Handle(reading(63, 20))

	if _, err := p.Sensor(64); !errors.Is(err, aggregate.ErrNotFound) {
		t.Errorf("sensor 64 err = %v, want ErrNotFound", err)
	}
	if len(p.Sensors()) != 1 || len(p.Alerts()) != 0 {
		t.Errorf("sensors=%v alerts=%v, want only sensor 63 and no alerts", p.Sensors(), p.Alerts())
	}
}

func TestHistoryWindow(t *testing.T) {
	p := newTestPipeline(Options{HistorySize: 3})
	for _, temp := range []uint8{10, 30, 20, 26} {
		p.Handle(reading(7, temp))
	}

	w := p.HistoryWindow(7)
	if w.Points != 3 || w.Last != 26 || w.Low != 20 || w.High != 30 {
		t.Errorf("window = %+v", w)
	}
	if w.Avg != 76.0/3 {
		t.Errorf("avg = %v, want %v", w.Avg, 76.0/3)
	}
	if got := p.HistoryWindow(8); got.Points != 0 {
		t.Errorf("unknown sensor window = %+v, want zero", got)
	}
}

func TestAlertThreshold(t *testing.T) {
	p := newTestPipeline(Options{})
	p.Handle(reading(1, 34))
	if n := len(p.Alerts()); n != 0 {
		t.Fatalf("34°C raised %d alerts", n)
	}
	p.Handle(reading(1, 35))
	alerts := p.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("35°C raised %d alerts, want 1", len(alerts))
	}
	if want := "Sensor #1 exceeded threshold: 35°C"; alerts[0].Message != want {
		t.Errorf("message = %q, want %q", alerts[0].Message, want)
	}
	if !alerts[0].Timestamp.Equal(epoch) {
		t.Errorf("timestamp = %v, want %v", alerts[0].Timestamp, epoch)
	}
}

func TestAlertCapacity(t *testing.T) {
	p := newTestPipeline(Options{})
	for i := 0; i < 12; i++ {
		p.Handle(reading(sensor.ID(i), 40))
	}
	alerts := p.Alerts()
	if len(alerts) != alert.Capacity {
		t.Fatalf("alerts = %d, want %d", len(alerts), alert.Capacity)
	}
	if !strings.HasPrefix(alerts[0].Message, "Sensor #11 ") {
		t.Errorf("newest = %q, want sensor 11", alerts[0].Message)
	}
	if !strings.HasPrefix(alerts[9].Message, "Sensor #2 ") {
		t.Errorf("oldest = %q, want sensor 2", alerts[9].Message)
	}
}

func TestCustomAlertOptions(t *testing.T) {
	p := newTestPipeline(Options{AlertThreshold: 50, AlertCapacity: 2})
	p.Handle(reading(1, 45))
	for i := 0; i < 3; i++ {
		p.Handle(reading(2, 50))
	}
	if n := len(p.Alerts()); n != 2 {
		t.Errorf("alerts = %d, want 2", n)
	}
	if p.Threshold() != 50 {
		t.Errorf("threshold = %d, want 50", p.Threshold())
	}
}

func TestStats(t *testing.T) {
	p := newTestPipeline(Options{})
	if got := p.Stats(); got != (aggregate.Stats{}) {
		t.Errorf("empty stats = %+v", got)
	}
	for i, temp := range []uint8{10, 20, 30} {
		p.Handle(reading(sensor.ID(i), temp))
	}
	want := aggregate.Stats{TotalSensors: 3, AvgTemperature: 20, MinTemperature: 10, MaxTemperature: 30}
	if got := p.Stats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestObserverErrorDoesNotStopIngestion(t *testing.T) {
	var logs bytes.Buffer
	obs := &recordingObserver{err: errors.New("disk full")}
	m := metrics.New()
	p := newTestPipeline(Options{
		Logger:  slog.New(slog.NewTextHandler(&logs, nil)),
		Metrics: m,
	})
	p.AddObserver(obs)

	p.Handle(reading(3, 36))
	p.Handle(reading(3, 20))

	if s, _ := p.Sensor(3); s.Count != 2 {
		t.Errorf("count = %d, want 2", s.Count)
	}
	if len(obs.alerts) != 1 {
		t.Errorf("observer alerts = %d, want 1", len(obs.alerts))
	}
	if !strings.Contains(logs.String(), "observer failed") {
		t.Errorf("expected observer failure in logs, got %q", logs.String())
	}
	if got := testutil.ToFloat64(m.ObserverErrors.WithLabelValues("recorder")); got != 3 {
		t.Errorf("observer errors = %v, want 3", got)
	}
}

func TestMetricsTrackStream(t *testing.T) {
	m := metrics.New()
	p := newTestPipeline(Options{Metrics: m})

	p.Handle(chunk(0xA1, 0x10, 0x85))
	if got := testutil.ToFloat64(m.CarryBytes); got != 1 {
		t.Errorf("carry = %v, want 1", got)
	}
	p.Handle(chunk(0x19))
	p.Handle(reading(40, 22))

	if got := testutil.ToFloat64(m.ChunksReceived); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesReceived); got != 4 {
		t.Errorf("bytes = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.ReadingsApplied.WithLabelValues("process")); got != 2 {
		t.Errorf("process readings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReadingsApplied.WithLabelValues("synthetic")); got != 1 {
		t.Errorf("synthetic readings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SensorsTracked); got != 3 {
		t.Errorf("sensors = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.CarryBytes); got != 0 {
		t.Errorf("carry = %v, want 0", got)
	}
}

func TestRunConsumesEvents(t *testing.T) {
	p := newTestPipeline(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	f := protocol.EncodeReading(33, 16)
	p.Events() <- chunk(f[:]...)

	deadline := time.After(5 * time.Second)
	for {
		if _, err := p.Sensor(33); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reading was not applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestSnapshotsDuringIngestion(t *testing.T) {
	p := newTestPipeline(Options{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p.Handle(reading(sensor.ID(i%64), uint8(i%50)))
		}
	}()
	for i := 0; i < 100; i++ {
		for _, s := range p.Sensors() {
			if s.Min > s.Temperature || s.Temperature > s.Max || s.Count == 0 {
				t.Fatalf("inconsistent aggregate %+v", s)
			}
		}
		_ = p.Alerts()
		_ = p.Stats()
	}
	wg.Wait()
}
