// Package metrics exposes ingestion counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensorstream"

// Metrics holds every collector the service reports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ChunksReceived  prometheus.Counter
	BytesReceived   prometheus.Counter
	FramesDecoded   *prometheus.CounterVec
	ReadingsApplied *prometheus.CounterVec
	AlertsRaised    prometheus.Counter
	ObserverErrors  *prometheus.CounterVec
	SensorsTracked  prometheus.Gauge
	CarryBytes      prometheus.Gauge
	ProcessStarts   prometheus.Counter
	ProcessExits    *prometheus.CounterVec
	SourceState     *prometheus.GaugeVec
}

// New creates the collectors and registers them, with Go runtime and
// process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ChunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Byte chunks received from the external source",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Bytes received from the external source",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frames decoded, by message type",
		}, []string{"type"}),
		ReadingsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "readings_total",
			Help:      "Readings applied to the aggregate store, by origin",
		}, []string{"origin"}),
		AlertsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "alerts_total",
			Help:      "Threshold alerts raised",
		}),
		ObserverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "observer_errors_total",
			Help:      "Failures reported by reading observers",
		}, []string{"observer"}),
		SensorsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "sensors",
			Help:      "Distinct sensor ids observed",
		}),
		CarryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "carry_bytes",
			Help:      "Bytes held by the reassembler awaiting a full frame",
		}),
		ProcessStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "process_starts_total",
			Help:      "Successful external process launches",
		}),
		ProcessExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "process_exits_total",
			Help:      "External process exits, by exit code",
		}, []string{"code"}),
		SourceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "state",
			Help:      "1 for the supervisor's current state, 0 otherwise",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.ChunksReceived,
		m.BytesReceived,
		m.FramesDecoded,
		m.ReadingsApplied,
		m.AlertsRaised,
		m.ObserverErrors,
		m.SensorsTracked,
		m.CarryBytes,
		m.ProcessStarts,
		m.ProcessExits,
		m.SourceState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetSourceState marks state as the only active supervisor state.
func (m *Metrics) SetSourceState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SourceState.WithLabelValues(s).Set(v)
	}
}
