package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/config"
	"github.com/luki/sensorstream/internal/sensor"
)

func testClient() *Client {
	cfg := config.Config{
		MQTTBroker:      "127.0.0.1",
		MQTTPort:        1,
		MQTTClientID:    "test",
		MQTTTopicPrefix: "plant",
	}
	return NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTopics(t *testing.T) {
	if got := ReadingTopic("plant", 33); got != "plant/sensors/33/reading" {
		t.Errorf("ReadingTopic = %q", got)
	}
	if got := AlertTopic("plant"); got != "plant/alerts" {
		t.Errorf("AlertTopic = %q", got)
	}
	if got := SourceTopic("plant"); got != "plant/source" {
		t.Errorf("SourceTopic = %q", got)
	}
}

func TestPublishWhileDisconnectedDrops(t *testing.T) {
	c := testClient()
	now := time.Now()
	r := sensor.Reading{ID: 1, Temperature: 40, Time: now}

	if err := c.OnReading(r, aggregate.Sensor{Temperature: 40, Min: 40, Max: 40, Count: 1}); err != nil {
		t.Errorf("OnReading: %v", err)
	}
	if err := c.OnAlert(r, alert.Record{Message: "m", Timestamp: now}); err != nil {
		t.Errorf("OnAlert: %v", err)
	}
	if err := c.PublishSource(SourceMessage{State: "running"}); err != nil {
		t.Errorf("PublishSource: %v", err)
	}
}

func TestConnectAfterDisconnect(t *testing.T) {
	c := testClient()
	c.Disconnect()
	c.Disconnect()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Connect after Disconnect = %v, want ErrStopped", err)
	}
}

func TestConnectHonoursContext(t *testing.T) {
	c := testClient()
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect = %v, want deadline exceeded", err)
	}
}

func TestMessageJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := json.Marshal(AlertMessage{SensorID: 5, Temperature: 36, Message: "hot", Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"sensorId":5,"temperature":36,"message":"hot","timestamp":"2026-01-02T03:04:05Z"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}
