package serialio

import (
	"bytes"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// RealLink is a Link over a physical serial port.
type RealLink struct {
	port serial.Port
	name string
	baud int

	// pending holds bytes read past the last terminator.
	pending []byte
}

// Open opens the named port at the given baud rate.
func Open(name string, baud int) (*RealLink, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &RealLink{port: port, name: name, baud: baud}, nil
}

// ReadLine reads one '\n'-terminated line, stripping the terminator and
// any trailing '\r'. Bytes received past the terminator are kept for the
// next call.
func (l *RealLink) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := bytes.TrimRight(l.pending[:i], "\r")
			l.pending = append([]byte(nil), l.pending[i+1:]...)
			return string(line), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}
		if err := l.port.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("set read timeout on %s: %w", l.name, err)
		}

		buf := make([]byte, 256)
		n, err := l.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", l.name, err)
		}
		if n == 0 {
			// go.bug.st/serial signals an expired read timeout as a
			// zero-byte read with a nil error.
			return "", ErrTimeout
		}
		l.pending = append(l.pending, buf[:n]...)
	}
}

// Write sends raw bytes to the device.
func (l *RealLink) Write(p []byte) error {
	if _, err := l.port.Write(p); err != nil {
		return fmt.Errorf("write %s: %w", l.name, err)
	}
	return nil
}

// Restart closes the port, waits SettleDelay for the firmware to reboot,
// and opens the port again. Any buffered partial line is discarded.
func (l *RealLink) Restart() error {
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", l.name, err)
	}
	time.Sleep(SettleDelay)
	port, err := serial.Open(l.name, &serial.Mode{BaudRate: l.baud})
	if err != nil {
		return fmt.Errorf("reopen %s: %w", l.name, err)
	}
	l.port = port
	l.pending = nil
	return nil
}

// Close releases the port.
func (l *RealLink) Close() error {
	return l.port.Close()
}
