// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topic is the MQTT topic for sensor readings.
const Topic = "environment/monitor/readings"

// TopicSystem is the MQTT topic for daemon lifecycle events.
const TopicSystem = "environment/monitor/system"

// Publisher publishes readings and lifecycle events to MQTT.
type Publisher interface {
	// Publish sends one sensor reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r ReadingEvent) error

	// PublishSystem sends a lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ReadingEvent is one timestamped sensor frame to publish.
type ReadingEvent struct {
	Timestamp time.Time
	Device    string
	Sensors   []string
	Values    []float64
}

// SystemEvent represents a daemon lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "SHUTDOWN", "DATA_FAULT", "PERIPHERAL_DISCONNECTED"
	Reason     string // free text, e.g. "SIGTERM" or the offending frame
	Device     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a reading.
type Payload struct {
	Reading ReadingPayload `json:"reading"`
}

// ReadingPayload contains the reading details. Sensors maps each sensor
// name to its value; unnamed trailing values get positional keys.
type ReadingPayload struct {
	Timestamp string             `json:"timestamp"`
	Device    string             `json:"device"`
	Sensors   map[string]float64 `json:"sensors"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r ReadingEvent) ([]byte, error) {
	sensors := make(map[string]float64, len(r.Values))
	for i, v := range r.Values {
		name := fmt.Sprintf("value%d", i)
		if i < len(r.Sensors) && r.Sensors[i] != "" {
			name = r.Sensors[i]
		}
		sensors[name] = v
	}

	payload := Payload{
		Reading: ReadingPayload{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Device:    r.Device,
			Sensors:   sensors,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for lifecycle events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the lifecycle event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Device    string `json:"device,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a lifecycle event.
// If event.RawPayload is set, it is returned directly (used for full
// status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Device:    event.Device,
		},
	}
	return json.Marshal(payload)
}
