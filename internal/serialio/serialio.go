// Package serialio provides line-oriented serial access to the monitor
// device with hardware abstraction.
// The real implementation uses go.bug.st/serial.
// The fake implementation allows testing without a device.
package serialio

import (
	"errors"
	"time"
)

// ErrTimeout is returned by ReadLine when no line terminator arrives
// within the timeout.
var ErrTimeout = errors.New("serial read timeout")

// Link is a line-oriented serial connection to a monitor device.
// A Link is not safe for concurrent use: at most one reader may be active
// at a time, and writes must not overlap an active read. The monitor
// enforces this by refusing device writes while a logging session runs.
type Link interface {
	// ReadLine reads one line, stripped of its terminator.
	// Returns ErrTimeout if no terminator arrives within timeout.
	ReadLine(timeout time.Duration) (string, error)

	// Write sends raw bytes to the device.
	Write(p []byte) error

	// Restart closes the port, waits for the firmware to settle, and
	// opens it again. The firmware resets its role state on port close.
	Restart() error

	// Close releases the port.
	Close() error
}

// SettleDelay is how long Restart waits between close and re-open.
// The firmware reboots when the port closes and drops anything written
// before it has finished.
const SettleDelay = 2 * time.Second
