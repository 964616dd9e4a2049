package link

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/sensors"
)

// topicTelemetry carries the board's periodic sensor frame.
const topicTelemetry = "telemetry"

// Telemetry is the board's periodic sensor frame. Pressure is inches of
// water column, current is motor amps.
type Telemetry struct {
	Pressure *float64 `json:"pressure,omitempty"`
	Current  *float64 `json:"current,omitempty"`
	Overfill *bool    `json:"overfill,omitempty"`
}

// parseTelemetry decodes a telemetry frame. Unknown fields are ignored so
// board firmware can grow the frame without breaking older controllers.
func parseTelemetry(data []byte) (Telemetry, error) {
	var t Telemetry
	if err := json.Unmarshal(data, &t); err != nil {
		return Telemetry{}, fmt.Errorf("decode telemetry frame: %w", err)
	}

	return t, nil
}

// WireSensors subscribes to the telemetry topic and keeps the caches
// current. Fields missing from a frame leave their cache untouched.
func (l *Link) WireSensors(pressure, current *sensors.Cached, overfill *sensors.Flag) error {
	return l.subscribe(l.topic(topicTelemetry), func(_ mqtt.Client, msg mqtt.Message) {
		frame, err := parseTelemetry(msg.Payload())
		if err != nil {
			logger.Warnf(context.Background(), "dropping malformed telemetry frame: %v", err)
			return
		}

		now := time.Now()

		if frame.Pressure != nil {
			pressure.Update(*frame.Pressure, now)
		}

		if frame.Current != nil {
			current.Update(*frame.Current, now)
		}

		if frame.Overfill != nil {
			overfill.Update(*frame.Overfill, now)
		}
	})
}
