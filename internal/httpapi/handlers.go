package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/history"
	"github.com/luki/sensorstream/internal/sensor"
	"github.com/luki/sensorstream/internal/supervisor"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

// Readings is the read side of the pipeline.
type Readings interface {
	Sensors() map[sensor.ID]aggregate.Sensor
	Sensor(id sensor.ID) (aggregate.Sensor, error)
	Alerts() []alert.Record
	Stats() aggregate.Stats
	History(id sensor.ID, n int) []history.Point
	HistoryWindow(id sensor.ID) history.Window
	Threshold() uint8
}

// SourceStatus reports the supervisor's view of the active source.
type SourceStatus interface {
	State() supervisor.State
	Command() string
	Restarts() int64
}

// SensorResponse is one sensor's aggregate with its id.
type SensorResponse struct {
	ID sensor.ID `json:"id"`
	aggregate.Sensor
}

// HistoryResponse lists recent points for one sensor, oldest first.
// Window covers everything retained, not just the returned points.
type HistoryResponse struct {
	ID     sensor.ID       `json:"id"`
	Points []history.Point `json:"points"`
	Window history.Window  `json:"window"`
}

// ThresholdResponse carries the temperature at which alerts fire.
type ThresholdResponse struct {
	Threshold uint8 `json:"threshold"`
}

// SourceResponse describes the active reading source.
type SourceResponse struct {
	State    string `json:"state"`
	Command  string `json:"command"`
	Restarts int64  `json:"restarts"`
}

type API struct {
	readings Readings
	source   SourceStatus
	logger   *slog.Logger
}

// NewAPI returns handlers over readings. source may be nil, in which case
// /api/source reports an unknown state.
func NewAPI(readings Readings, source SourceStatus, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{readings: readings, source: source, logger: logger}
}

func (a *API) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) HandleSensors(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.readings.Sensors())
}

func (a *API) HandleSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := a.sensorID(w, r)
	if !ok {
		return
	}

	s, err := a.readings.Sensor(id)
	if errors.Is(err, aggregate.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "Sensor not found")
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, SensorResponse{ID: id, Sensor: s})
}

func (a *API) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := a.sensorID(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := a.readings.Sensor(id); errors.Is(err, aggregate.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "Sensor not found")
		return
	}
	points := a.readings.History(id, limit)
	if points == nil {
		points = []history.Point{}
	}
	a.writeJSON(w, http.StatusOK, HistoryResponse{
		ID:     id,
		Points: points,
		Window: a.readings.HistoryWindow(id),
	})
}

func (a *API) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := a.readings.Alerts()
	if alerts == nil {
		alerts = []alert.Record{}
	}
	a.writeJSON(w, http.StatusOK, alerts)
}

func (a *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.readings.Stats())
}

func (a *API) HandleSource(w http.ResponseWriter, r *http.Request) {
	if a.source == nil {
		a.writeJSON(w, http.StatusOK, SourceResponse{State: "unknown"})
		return
	}
	a.writeJSON(w, http.StatusOK, SourceResponse{
		State:    a.source.State().String(),
		Command:  a.source.Command(),
		Restarts: a.source.Restarts(),
	})
}

func (a *API) HandleThreshold(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, ThresholdResponse{Threshold: a.readings.Threshold()})
}

func (a *API) sensorID(w http.ResponseWriter, r *http.Request) (sensor.ID, bool) {
	id, err := sensor.ParseID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid sensor id")
		return 0, false
	}
	return id, true
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxHistoryLimit {
		return 0, errors.New("'limit' must be <= 10000")
	}
	return n, nil
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to write JSON", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
