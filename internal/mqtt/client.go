// Package mqtt fans readings, alerts and source state out to an MQTT
// broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/luki/sensorstream/internal/aggregate"
	"github.com/luki/sensorstream/internal/alert"
	"github.com/luki/sensorstream/internal/config"
	"github.com/luki/sensorstream/internal/sensor"
)

const publishTimeout = 2 * time.Second

// ErrStopped is returned by Connect after Disconnect.
var ErrStopped = errors.New("mqtt client stopped")

// Client publishes pipeline output. While the broker is unreachable,
// readings are dropped rather than queued.
type Client struct {
	client    mqtt.Client
	broker    string
	prefix    string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// ReadingMessage is published to <prefix>/sensors/<id>/reading.
type ReadingMessage struct {
	SensorID    sensor.ID `json:"sensorId"`
	Temperature uint8     `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
	Min         uint8     `json:"min"`
	Max         uint8     `json:"max"`
	Count       uint64    `json:"count"`
}

// AlertMessage is published to <prefix>/alerts.
type AlertMessage struct {
	SensorID    sensor.ID `json:"sensorId"`
	Temperature uint8     `json:"temperature"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// SourceMessage is published, retained, to <prefix>/source.
type SourceMessage struct {
	State     string    `json:"state"`
	Command   string    `json:"command,omitempty"`
	Restarts  int64     `json:"restarts"`
	Timestamp time.Time `json:"timestamp"`
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		broker: fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort),
		prefix: cfg.MQTTTopicPrefix,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", c.broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect waits for the initial connection. It respects ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (c *Client) Name() string { return "mqtt" }

// OnReading publishes the reading with its updated aggregate.
func (c *Client) OnReading(r sensor.Reading, agg aggregate.Sensor) error {
	return c.publish(ReadingTopic(c.prefix, r.ID), false, ReadingMessage{
		SensorID:    r.ID,
		Temperature: r.Temperature,
		Timestamp:   r.Time,
		Min:         agg.Min,
		Max:         agg.Max,
		Count:       agg.Count,
	})
}

// OnAlert publishes a raised alert.
func (c *Client) OnAlert(r sensor.Reading, rec alert.Record) error {
	return c.publish(AlertTopic(c.prefix), false, AlertMessage{
		SensorID:    r.ID,
		Temperature: r.Temperature,
		Message:     rec.Message,
		Timestamp:   rec.Timestamp,
	})
}

// PublishSource publishes the supervisor state as a retained message.
func (c *Client) PublishSource(msg SourceMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return c.publish(SourceTopic(c.prefix), true, msg)
}

func (c *Client) publish(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		c.logger.Debug("mqtt not connected, dropping message", "topic", topic)
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "bytes", len(data))
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the connection. Safe to call
// more than once.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
