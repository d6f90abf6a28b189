package mqtt

import (
	"fmt"

	"github.com/luki/sensorstream/internal/sensor"
)

func ReadingTopic(prefix string, id sensor.ID) string {
	return fmt.Sprintf("%s/sensors/%d/reading", prefix, id)
}

func AlertTopic(prefix string) string {
	return prefix + "/alerts"
}

func SourceTopic(prefix string) string {
	return prefix + "/source"
}
