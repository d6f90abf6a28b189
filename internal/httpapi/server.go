// Package httpapi serves the pipeline's state as JSON.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

// NewMux routes the API. metrics may be nil to omit /metrics.
func NewMux(api *API, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.HandleHealthz)
	mux.HandleFunc("GET /api/sensors", api.HandleSensors)
	mux.HandleFunc("GET /api/sensors/{id}", api.HandleSensor)
	mux.HandleFunc("GET /api/sensors/{id}/history", api.HandleHistory)
	mux.HandleFunc("GET /api/alerts", api.HandleAlerts)
	mux.HandleFunc("GET /api/alerts/threshold", api.HandleThreshold)
	mux.HandleFunc("GET /api/stats", api.HandleStats)
	mux.HandleFunc("GET /api/source", api.HandleSource)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

func NewServer(addr string, mux http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           cors(requestLogger(logger, mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
