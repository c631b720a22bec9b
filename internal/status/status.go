// Package status provides a thread-safe status tracker for the envmon
// daemon. It is read by the HTTP handlers and embedded into MQTT
// lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/envmon/internal/protocol"
)

// BLE connection display states. A wired device has no BLE link at all,
// so the field is tri-state rather than boolean.
const (
	BLENotApplicable = "n/a"
	BLEConnected     = "connected"
	BLEDisconnected  = "disconnected"
)

// Config contains daemon configuration for display.
type Config struct {
	Port        string
	Baud        int
	Delim       string
	LogRoot     string
	Broker      string
	HTTPAddr    string
	HeartbeatMs int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         string
	Role          string
	DeviceName    string
	Sensors       []string
	Peripherals   []string
	BLE           string
	Reading       *protocol.Reading
	LogFile       string
	Rows          int64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			BLE:       BLENotApplicable,
			Config:    cfg,
		},
	}
}

// SetDevice sets the device identity after a handshake, rename, or
// peripheral connection. The sensor list is replaced wholesale.
func (t *Tracker) SetDevice(role, name string, sensors []string) {
	t.mu.Lock()
	t.snap.Role = role
	t.snap.DeviceName = name
	t.snap.Sensors = sensors
	t.mu.Unlock()
}

// SetState sets the connection state.
func (t *Tracker) SetState(state string) {
	t.mu.Lock()
	t.snap.State = state
	t.mu.Unlock()
}

// SetBLE sets the BLE connection display state.
func (t *Tracker) SetBLE(ble string) {
	t.mu.Lock()
	t.snap.BLE = ble
	t.mu.Unlock()
}

// SetPeripherals sets the discovered peripheral list.
func (t *Tracker) SetPeripherals(peripherals []string) {
	t.mu.Lock()
	t.snap.Peripherals = peripherals
	t.mu.Unlock()
}

// SetReading publishes the latest reading, the file it was written to,
// and the session row count as one unit.
func (t *Tracker) SetReading(r protocol.Reading, logFile string, rows int64) {
	t.mu.Lock()
	t.snap.Reading = &r
	t.snap.LogFile = logFile
	t.snap.Rows = rows
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
