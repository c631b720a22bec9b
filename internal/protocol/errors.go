package protocol

import "errors"

// Protocol error kinds, matched with errors.Is. Read timeouts are the
// link's own serialio.ErrTimeout; together these form the closed set of
// failures a caller has to handle.
var (
	// ErrDeviceNotFound means no identifying line arrived within the
	// probe timeout. The link is not a monitor device and must be
	// discarded.
	ErrDeviceNotFound = errors.New("environment monitor not found")

	// ErrDataFault means a data frame carried the 0.00 fault sentinel.
	// The session is dead but the device may be reconnected.
	ErrDataFault = errors.New("device data fault")
)
