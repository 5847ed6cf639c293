// Package mqtt publishes meter readings with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/s0-meter/internal/meter"
)

// TopicReadings is the MQTT topic for meter readings.
const TopicReadings = "energy/meter/s0/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/meter/s0/system"

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends one meter reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r meter.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message envelope for one reading.
type Payload struct {
	Meter MeterPayload `json:"meter"`
}

// MeterPayload contains the reading details. Power values are watts,
// impulse values are always 1.
type MeterPayload struct {
	Timestamp string  `json:"timestamp"`
	Channel   string  `json:"channel"`
	Value     float64 `json:"value"`
}

// FormatPayload creates the JSON payload for a reading. Impulses can
// arrive well under a second apart, so timestamps keep nanoseconds.
func FormatPayload(r meter.Reading) ([]byte, error) {
	payload := Payload{
		Meter: MeterPayload{
			Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
			Channel:   string(r.Channel),
			Value:     r.Value,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message envelope for system events that do
// not carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
