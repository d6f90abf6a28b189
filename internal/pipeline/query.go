package pipeline

import (
	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/history"
	"github.com/luki/sensorstream/internal/sensor"
)

// Sensors returns a copy of every aggregate.
func (p *Pipeline) Sensors() map[sensor.ID]aggregate.Sensor {
	return p.sensors.Snapshot()
}

// Sensor returns the aggregate for id or aggregate.ErrNotFound.
func (p *Pipeline) Sensor(id sensor.ID) (aggregate.Sensor, error) {
	s, ok := p.sensors.Get(id)
	if !ok {
		return aggregate.Sensor{}, aggregate.ErrNotFound
	}
	return s, nil
}

// Alerts returns the alert log, newest first.
func (p *Pipeline) Alerts() []alert.Record {
	return p.alerts.Snapshot()
}

// Stats summarises the latest temperatures.
func (p *Pipeline) Stats() aggregate.Stats {
	return p.sensors.Stats()
}

// History returns up to n recent points for id, oldest first. A
// non-positive n returns everything retained.
func (p *Pipeline) History(id sensor.ID, n int) []history.Point {
	return p.history.LastN(id, n)
}

// HistoryWindow summarises every point retained for id.
func (p *Pipeline) HistoryWindow(id sensor.ID) history.Window {
	w, _ := p.history.Window(id)
	return w
}

// Threshold returns the alerting temperature.
func (p *Pipeline) Threshold() uint8 {
	return p.alerts.Threshold()
}
