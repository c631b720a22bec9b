package monitor

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/envmon/internal/logfile"
	"github.com/sweeney/envmon/internal/mqtt"
	"github.com/sweeney/envmon/internal/protocol"
	"github.com/sweeney/envmon/internal/serialio"
)

// session is one logging run. The stop channel is the cancellation
// signal; done closes when the loop has exited and err is settled.
type session struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	err      error

	rows          int64
	lastHeartbeat time.Time
}

func (s *session) stopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// run is the acquisition loop. One iteration reads a line, classifies
// it, and either writes a row, resynchronises past an echo, or ends the
// session on a device event or fault. The loop holds no lock across its
// blocking read; shared state is updated through the monitor's mutex.
func (m *Monitor) run(sess *session, files *logfile.Manager) {
	defer func() {
		m.mu.Lock()
		m.lastErr = sess.err
		m.sess = nil
		m.mu.Unlock()
		close(sess.done)
	}()

	for {
		if sess.stopRequested() {
			m.endSession(m.idleState())
			return
		}

		// The day's file and header exist before the first frame
		// arrives, and a calendar rollover gets its new file even while
		// the device is quiet.
		m.mu.Lock()
		sensors := append([]string(nil), m.sensors...)
		m.mu.Unlock()
		path, err := files.Touch(time.Now(), sensors)
		if err != nil {
			sess.err = err
			m.endSession(StateFaulted)
			return
		}
		m.mu.Lock()
		m.logFile = path
		m.mu.Unlock()

		line, err := m.link.ReadLine(m.readTimeout)
		if err != nil {
			if sess.stopRequested() {
				m.endSession(m.idleState())
				return
			}
			if errors.Is(err, serialio.ErrTimeout) {
				// A silent device stalls the loop rather than ending
				// the session; the bounded read keeps Stop responsive.
				continue
			}
			sess.err = fmt.Errorf("read frame: %w", err)
			m.endSession(StateFaulted)
			return
		}

		if !m.handleLine(sess, files, line, true) {
			return
		}
	}
}

// handleLine classifies one line and acts on it. resync guards against
// consuming the stream indefinitely: an echo is followed by exactly one
// replacement read. Returns false when the session has ended.
func (m *Monitor) handleLine(sess *session, files *logfile.Manager, line string, resync bool) bool {
	m.mu.Lock()
	name := m.name
	sensors := append([]string(nil), m.sensors...)
	m.mu.Unlock()

	ln := protocol.Classify(line, name, len(sensors))
	switch ln.Kind {
	case protocol.LineDisconnect:
		log.Printf("device event: %s", ln.Raw)
		m.setBLE(false)
		m.publishSystem("PERIPHERAL_DISCONNECTED", ln.Raw, name)
		m.endSession(m.idleState())
		return false

	case protocol.LineConnectFail:
		log.Printf("device event: %s", ln.Raw)
		m.setBLE(false)
		m.publishSystem("CONNECT_FAILED", ln.Raw, name)
		m.endSession(m.idleState())
		return false

	case protocol.LineEcho:
		if !resync {
			return true
		}
		next, err := m.link.ReadLine(m.readTimeout)
		if err != nil {
			return true
		}
		ok := m.handleLine(sess, files, next, false)
		if ok {
			// The firmware emits a one-line footer after each real
			// data frame; drop it.
			m.link.ReadLine(m.readTimeout)
		}
		return ok

	default: // protocol.LineData
		return m.writeFrame(sess, files, sensors, ln)
	}
}

// writeFrame records one data frame: fault check, row write, current
// reading update, and publishing.
func (m *Monitor) writeFrame(sess *session, files *logfile.Manager, sensors []string, ln protocol.Line) bool {
	now := time.Now()

	if protocol.HasFault(ln.Values) {
		log.Printf("data fault in frame %q", ln.Raw)
		sess.err = fmt.Errorf("frame %q: %w", ln.Raw, protocol.ErrDataFault)
		m.forceDisconnect()
		m.publishSystem("DATA_FAULT", ln.Raw, files.Device)
		m.endSession(StateFaulted)
		return false
	}

	path, err := files.WriteRow(now, sensors, ln.Fields)
	if err != nil {
		sess.err = err
		m.endSession(StateFaulted)
		return false
	}

	reading := protocol.Reading{Time: now, Fields: ln.Fields, Values: ln.Values}
	sess.rows++

	m.mu.Lock()
	m.reading = &reading
	m.rows++
	m.logFile = path
	rows := m.rows
	tracker := m.tracker
	pub := m.publisher
	hb := m.heartbeat
	m.mu.Unlock()

	if tracker != nil {
		tracker.SetReading(reading, path, rows)
		if cs, ok := pub.(mqtt.ConnectionStatus); ok {
			tracker.SetMQTTConnected(cs.IsConnected())
		}
	}
	if pub != nil {
		err := pub.Publish(mqtt.ReadingEvent{
			Timestamp: now,
			Device:    files.Device,
			Sensors:   sensors,
			Values:    ln.Values,
		})
		if err != nil {
			log.Printf("publish reading: %v", err)
			// Don't end the session on publish failure
		}
	}

	if hb > 0 && now.Sub(sess.lastHeartbeat) >= hb {
		sess.lastHeartbeat = now
		m.publishSystem("HEARTBEAT", fmt.Sprintf("rows=%d", sess.rows), files.Device)
	}
	return true
}

// forceDisconnect tears down the BLE link after a data fault. A central
// gets its port restarted so the firmware falls back to its idle role;
// a wired device has nothing to tear down.
func (m *Monitor) forceDisconnect() {
	m.mu.Lock()
	central := m.role == protocol.RoleCentral
	m.mu.Unlock()
	if !central {
		return
	}

	if err := m.link.Restart(); err != nil {
		log.Printf("restart after fault: %v", err)
	}
	m.setBLE(false)
}

// setBLE updates the BLE connected flag for central devices.
func (m *Monitor) setBLE(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ble == nil {
		return
	}
	m.ble = &connected
	if m.tracker != nil {
		m.tracker.SetBLE(m.bleDisplayLocked())
	}
}

// endSession sets the post-session state.
func (m *Monitor) endSession(s State) {
	m.setState(s)
}

// idleState is idleStateLocked with locking.
func (m *Monitor) idleState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idleStateLocked()
}
