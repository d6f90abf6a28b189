package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/history"
	"github.com/luki/sensorstream/internal/httpapi"
	"github.com/luki/sensorstream/internal/sensor"
)

// Snapshot is one poll of the service API.
type Snapshot struct {
	Sensors map[sensor.ID]aggregate.Sensor
	History map[sensor.ID][]history.Point
	Alerts  []alert.Record
	Stats   aggregate.Stats
	Source  httpapi.SourceResponse
	// Threshold is the service's alert threshold.
	Threshold uint8
	Time      time.Time
}

// Client reads the service's HTTP API.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{base: baseURL, http: &http.Client{Timeout: timeout}}
}

// Fetch polls every endpoint the dashboard shows. historyN bounds the
// points fetched per sensor.
func (c *Client) Fetch(ctx context.Context, historyN int) (Snapshot, error) {
	snap := Snapshot{History: make(map[sensor.ID][]history.Point), Time: time.Now()}

	if err := c.get(ctx, "/api/sensors", &snap.Sensors); err != nil {
		return Snapshot{}, err
	}
	if err := c.get(ctx, "/api/alerts", &snap.Alerts); err != nil {
		return Snapshot{}, err
	}
	if err := c.get(ctx, "/api/stats", &snap.Stats); err != nil {
		return Snapshot{}, err
	}
	if err := c.get(ctx, "/api/source", &snap.Source); err != nil {
		return Snapshot{}, err
	}
	var th httpapi.ThresholdResponse
	if err := c.get(ctx, "/api/alerts/threshold", &th); err != nil {
		return Snapshot{}, err
	}
	snap.Threshold = th.Threshold

	for id := range snap.Sensors {
		var h httpapi.HistoryResponse
		path := fmt.Sprintf("/api/sensors/%d/history?limit=%d", id, historyN)
		if err := c.get(ctx, path, &h); err != nil {
			return Snapshot{}, err
		}
		snap.History[id] = h.Points
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
