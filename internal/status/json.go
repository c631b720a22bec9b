package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/envmon/internal/logfile"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Role          string       `json:"role"`
	Device        string       `json:"device"`
	Sensors       []string     `json:"sensors,omitempty"`
	Peripherals   []string     `json:"peripherals,omitempty"`
	BLE           string       `json:"ble"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	LogFile       string       `json:"log_file,omitempty"`
	Rows          int64        `json:"rows_written"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of the latest data frame.
type ReadingJSON struct {
	Timestamp string    `json:"timestamp"`
	Fields    []string  `json:"fields"`
	Values    []float64 `json:"values"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Port        string `json:"port"`
	Baud        int    `json:"baud"`
	Delim       string `json:"delim"`
	LogRoot     string `json:"log_root"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		Role:          snap.Role,
		Device:        snap.DeviceName,
		Sensors:       snap.Sensors,
		Peripherals:   snap.Peripherals,
		BLE:           snap.BLE,
		LogFile:       snap.LogFile,
		Rows:          snap.Rows,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Port:        snap.Config.Port,
			Baud:        snap.Config.Baud,
			Delim:       snap.Config.Delim,
			LogRoot:     snap.Config.LogRoot,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			HeartbeatMs: snap.Config.HeartbeatMs,
		},
	}

	if snap.Reading != nil {
		inner.Reading = &ReadingJSON{
			Timestamp: snap.Reading.Time.Format(logfile.RowTimeFormat),
			Fields:    snap.Reading.Fields,
			Values:    snap.Reading.Values,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
