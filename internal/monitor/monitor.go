// Package monitor coordinates an environment monitor device: the role
// handshake at construction, peripheral discovery and connection for
// BLE centrals, and the logging pipeline that records sensor frames to
// rotating day files.
//
// A Monitor owns its serial link exclusively. Discovery, rename, and
// disconnect all write to the device, and the wire protocol is not
// interleave-safe, so those operations refuse to run while a logging
// session is active. Stop the logger first.
package monitor

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/envmon/internal/logfile"
	"github.com/sweeney/envmon/internal/mqtt"
	"github.com/sweeney/envmon/internal/protocol"
	"github.com/sweeney/envmon/internal/serialio"
	"github.com/sweeney/envmon/internal/status"
)

// State is the connection state of the monitor.
// Logging is reachable only from WiredReady or Connected; Faulted only
// from Logging or Connecting.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateIdentifying  State = "IDENTIFYING"
	StateWiredReady   State = "WIRED_READY"
	StateCentralIdle  State = "CENTRAL_IDLE"
	StateScanning     State = "SCANNING"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateLogging      State = "LOGGING"
	StateFaulted      State = "FAULTED"
)

// DefaultScanCount is how many discovery lines a scan reads when the
// caller does not say otherwise.
const DefaultScanCount = 5

// SteadyTimeout bounds each logging-loop read. A silent device stalls
// the loop for up to this long per iteration rather than erroring out;
// it also bounds worst-case Stop latency.
const SteadyTimeout = 60 * time.Second

// ErrBusy is returned by operations that write to the device while a
// logging session is active.
var ErrBusy = errors.New("logging session active")

// connectProgressLines is the fixed status sequence the firmware prints
// while establishing a peripheral connection: connected, discovering
// attributes, attributes discovered, subscribed. The content is not
// inspected, only counted.
const connectProgressLines = 4

// Monitor is an environment monitor device on a serial link.
type Monitor struct {
	link  serialio.Link
	delim string

	// readTimeout bounds steady-state reads; tests shrink it.
	readTimeout time.Duration

	// heartbeat is the lifecycle heartbeat interval (0 disables it).
	heartbeat time.Duration

	tracker   *status.Tracker
	publisher mqtt.Publisher

	mu          sync.Mutex
	state       State
	role        protocol.Role
	name        string
	sensors     []string
	peripherals []string
	ble         *bool // nil for wired devices
	reading     *protocol.Reading
	rows        int64
	logFile     string
	sess        *session
	lastErr     error // terminal error of the most recent session
}

// New identifies the device on an opened link. Wired devices resolve
// their sensor list immediately; centrals have no name or sensors until
// a peripheral connection is made. Returns protocol.ErrDeviceNotFound
// if nothing announces itself within the probe timeout.
func New(link serialio.Link, delim string) (*Monitor, error) {
	m := &Monitor{
		link:        link,
		delim:       delim,
		readTimeout: SteadyTimeout,
		state:       StateIdentifying,
	}

	role, name, err := protocol.Identify(link)
	if err != nil {
		m.state = StateDisconnected
		return nil, err
	}
	m.role = role
	m.name = name

	if role == protocol.RoleCentral {
		connected := false
		m.ble = &connected
		m.state = StateCentralIdle
		return m, nil
	}

	sensors, err := protocol.ResolveSensors(link, name)
	if err != nil {
		m.state = StateDisconnected
		return nil, fmt.Errorf("resolve sensors: %w", err)
	}
	m.sensors = sensors
	m.state = StateWiredReady
	return m, nil
}

// SetTracker attaches a status tracker that mirrors the monitor state
// for HTTP and MQTT observers. Call before Start.
func (m *Monitor) SetTracker(t *status.Tracker) {
	m.mu.Lock()
	m.tracker = t
	m.mu.Unlock()
	m.syncTracker()
}

// SetPublisher attaches an MQTT publisher for readings and lifecycle
// events. Call before Start.
func (m *Monitor) SetPublisher(p mqtt.Publisher) {
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// SetHeartbeat sets the lifecycle heartbeat interval (0 disables it).
func (m *Monitor) SetHeartbeat(d time.Duration) {
	m.mu.Lock()
	m.heartbeat = d
	m.mu.Unlock()
}

// Role returns the device role.
func (m *Monitor) Role() protocol.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// State returns the connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DeviceName returns the device name. Empty for a central that has not
// connected to a peripheral yet.
func (m *Monitor) DeviceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Sensors returns the resolved sensor names in wire order.
func (m *Monitor) Sensors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sensors...)
}

// Peripherals returns the names found by the most recent scan.
func (m *Monitor) Peripherals() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.peripherals...)
}

// BLEConnected reports the BLE link state. applicable is false for
// wired devices, which have no BLE link at all.
func (m *Monitor) BLEConnected() (connected, applicable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ble == nil {
		return false, false
	}
	return *m.ble, true
}

// CurrentReading returns the most recent data frame. Only the latest
// reading is retained; ok is false before the first frame arrives.
func (m *Monitor) CurrentReading() (r protocol.Reading, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reading == nil {
		return protocol.Reading{}, false
	}
	return *m.reading, true
}

// Running reports whether a logging session is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// Rename writes a new name to a wired device and re-resolves its sensor
// list. The name is truncated to 8 characters for the firmware's SD
// card naming scheme.
func (m *Monitor) Rename(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		return fmt.Errorf("rename: %w", ErrBusy)
	}
	if m.role != protocol.RoleWired {
		return errors.New("rename: device is a BLE central")
	}

	name = protocol.TruncateName(name)
	if err := m.link.Write([]byte(name)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	sensors, err := protocol.ResolveSensors(m.link, name)
	if err != nil {
		return fmt.Errorf("rename: resolve sensors: %w", err)
	}

	m.name = name
	m.sensors = sensors
	m.syncTrackerLocked()
	return nil
}

// Scan discovers up to n advertising peripherals. Wired devices return
// an empty list. The firmware prints one line per advertisement with
// the name as the last whitespace token; duplicates are dropped in
// first-seen order, so fewer than n names may come back.
func (m *Monitor) Scan(n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		return nil, fmt.Errorf("scan: %w", ErrBusy)
	}
	if m.role != protocol.RoleCentral {
		return nil, nil
	}
	if n <= 0 {
		n = DefaultScanCount
	}

	m.setStateLocked(StateScanning)
	defer m.setStateLocked(m.idleStateLocked())

	// Priming read: flush the line the firmware emits as scanning starts.
	m.link.ReadLine(protocol.ScanTimeout)

	var found []string
	for i := 0; i < n; i++ {
		line, err := m.link.ReadLine(protocol.ScanTimeout)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		name := tokens[len(tokens)-1]
		if !contains(found, name) {
			found = append(found, name)
		}
	}

	m.peripherals = found
	if m.tracker != nil {
		m.tracker.SetPeripherals(append([]string(nil), found...))
	}
	return append([]string(nil), found...), nil
}

// ConnectPeripheral connects a central to the named peripheral. Writing
// the (8-character-capped) name doubles as rename and connect in the
// wire protocol; the firmware then prints an echo and four progress
// lines before the sensor header becomes readable. Progress failures
// surface as the link's read timeout.
func (m *Monitor) ConnectPeripheral(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		return fmt.Errorf("connect: %w", ErrBusy)
	}
	if m.role != protocol.RoleCentral {
		return errors.New("connect: device is not a BLE central")
	}

	name = protocol.TruncateName(name)
	m.setStateLocked(StateConnecting)

	if err := m.connectLocked(name); err != nil {
		m.setStateLocked(StateFaulted)
		return err
	}

	connected := true
	m.name = name
	m.ble = &connected
	m.setStateLocked(StateConnected)
	m.syncTrackerLocked()
	m.publishSystem("BLE_CONNECTED", "", name)
	return nil
}

func (m *Monitor) connectLocked(name string) error {
	if err := m.link.Write([]byte(name)); err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}
	// The firmware echoes the written name before reporting progress.
	if _, err := m.link.ReadLine(protocol.ConnectTimeout); err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}
	for i := 0; i < connectProgressLines; i++ {
		if _, err := m.link.ReadLine(protocol.ConnectTimeout); err != nil {
			return fmt.Errorf("connect %s: %w", name, err)
		}
	}

	sensors, err := protocol.ResolveSensors(m.link, name)
	if err != nil {
		return fmt.Errorf("connect %s: resolve sensors: %w", name, err)
	}
	m.sensors = sensors
	return nil
}

// DisconnectPeripheral stops any active logging and restarts the port,
// which forces the firmware back to its idle central role. The device
// may be scanned again afterwards.
func (m *Monitor) DisconnectPeripheral() error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != protocol.RoleCentral {
		return errors.New("disconnect: device is not a BLE central")
	}

	if err := m.link.Restart(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	connected := false
	m.ble = &connected
	m.name = ""
	m.sensors = nil
	m.setStateLocked(StateCentralIdle)
	m.syncTrackerLocked()
	return nil
}

// Start begins logging under root. It is a no-op when a session is
// already running; a second concurrent reader is never spawned. The
// session's terminal error (data fault, filesystem failure) is reported
// by Wait; disconnect events end the session without an error.
func (m *Monitor) Start(root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		return nil
	}
	if m.state != StateWiredReady && m.state != StateConnected {
		return fmt.Errorf("start: cannot log in state %s", m.state)
	}
	if len(m.sensors) == 0 {
		return errors.New("start: no sensors resolved")
	}

	files := logfile.NewManager(root, m.name, m.delim)
	sess := &session{
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		lastHeartbeat: time.Now(),
	}
	m.sess = sess
	m.lastErr = nil
	m.setStateLocked(StateLogging)

	go m.run(sess, files)
	return nil
}

// Stop requests a cooperative halt and waits for the loop to finish its
// current read. Stop when no session is active is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return
	}

	sess.stopOnce.Do(func() { close(sess.stop) })
	<-sess.done
}

// Wait blocks until the active session ends and returns its terminal
// error, if any. A session ended by a stop request or by a device event
// (disconnect, connect failure) returns nil. Calling Wait after the
// session has already torn itself down still reports that session's
// error; a fault in the first frames is not lost to the race between
// the caller and the loop.
func (m *Monitor) Wait() error {
	m.mu.Lock()
	sess := m.sess
	last := m.lastErr
	m.mu.Unlock()
	if sess == nil {
		return last
	}

	<-sess.done
	return sess.err
}

// Close releases the serial link. Any active session is stopped first.
func (m *Monitor) Close() error {
	m.Stop()
	return m.link.Close()
}

// idleStateLocked is the state a healthy device returns to when no
// session is active.
func (m *Monitor) idleStateLocked() State {
	if m.role == protocol.RoleWired {
		return StateWiredReady
	}
	if m.ble != nil && *m.ble {
		return StateConnected
	}
	return StateCentralIdle
}

func (m *Monitor) setStateLocked(s State) {
	m.state = s
	if m.tracker != nil {
		m.tracker.SetState(string(s))
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.setStateLocked(s)
	m.mu.Unlock()
}

func (m *Monitor) syncTracker() {
	m.mu.Lock()
	m.syncTrackerLocked()
	m.mu.Unlock()
}

func (m *Monitor) syncTrackerLocked() {
	if m.tracker == nil {
		return
	}
	m.tracker.SetState(string(m.state))
	m.tracker.SetDevice(m.role.String(), m.name, append([]string(nil), m.sensors...))
	m.tracker.SetBLE(m.bleDisplayLocked())
}

func (m *Monitor) bleDisplayLocked() string {
	switch {
	case m.ble == nil:
		return status.BLENotApplicable
	case *m.ble:
		return status.BLEConnected
	default:
		return status.BLEDisconnected
	}
}

// publishSystem sends a lifecycle event when a publisher is attached.
// Publish failures are logged, never fatal.
func (m *Monitor) publishSystem(event, reason, device string) {
	pub := m.publisher
	if pub == nil {
		return
	}
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Device:    device,
	})
	if err != nil {
		log.Printf("publish %s: %v", event, err)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
