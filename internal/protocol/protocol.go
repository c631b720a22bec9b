// Package protocol implements the line protocol spoken by the monitor
// firmware: the role handshake, sensor header resolution, and the
// classification of steady-state lines into events, echoes, and data
// frames. The firmware proxies all BLE behaviour through text lines;
// nothing here touches a radio.
package protocol

import (
	"strconv"
	"strings"
	"time"
)

// Wire vocabulary emitted by the firmware.
const (
	// TokenCentral is the role announcement of a BLE central.
	TokenCentral = "BLE Central"

	// TokenDisconnected is emitted when the peripheral drops.
	TokenDisconnected = "Peripheral disconnected."

	// TokenRescanning prefixes the line emitted when the central loses
	// its peripheral and starts scanning again.
	TokenRescanning = "Rescanning for UUID"

	// TokenFound is the first token of a connect-failure report.
	TokenFound = "Found"
)

// WireDelim separates fields in headers and data frames on the wire.
// It is independent of the log file delimiter.
const WireDelim = "\t"

// MaxNameLen caps device names to fit the firmware's DOS 8.3 SD card
// naming scheme.
const MaxNameLen = 8

// Link timeouts for the protocol phases.
const (
	// ProbeTimeout bounds the identification read at construction.
	ProbeTimeout = 500 * time.Millisecond

	// HeaderTimeout bounds each sensor header read.
	HeaderTimeout = 3 * time.Second

	// ScanTimeout bounds each peripheral discovery read.
	ScanTimeout = 10 * time.Second

	// ConnectTimeout bounds each BLE connect progress read.
	ConnectTimeout = 20 * time.Second
)

// Role is the device role announced at handshake.
type Role int

const (
	// RoleWired is a sensor peripheral wired directly to the host.
	RoleWired Role = iota

	// RoleCentral is a BLE central gateway; sensor data arrives only
	// after it connects to an advertising peripheral.
	RoleCentral
)

func (r Role) String() string {
	if r == RoleCentral {
		return "BLE_CENTRAL"
	}
	return "WIRED"
}

// TruncateName caps a device name at MaxNameLen characters.
func TruncateName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}

// LineKind tags the classification of a raw wire line.
type LineKind int

const (
	// LineData is a frame of sensor values.
	LineData LineKind = iota

	// LineEcho is a header or echo line to discard and resynchronise on.
	LineEcho

	// LineDisconnect reports that the peripheral dropped.
	LineDisconnect

	// LineConnectFail reports a failed connection attempt.
	LineConnectFail
)

// Line is a classified wire line. Fields and Values are set only for
// LineData, with Fields holding the raw wire text of each value.
type Line struct {
	Kind   LineKind
	Raw    string
	Fields []string
	Values []float64
}

// Classify tags one raw line read during steady-state logging.
// Event lines are matched first; anything whose first field is the
// device's own name, or whose field count does not match the sensor
// list, or which does not parse as floats, is an echo.
func Classify(raw, deviceName string, sensorCount int) Line {
	if raw == TokenDisconnected || strings.HasPrefix(raw, TokenRescanning) {
		return Line{Kind: LineDisconnect, Raw: raw}
	}
	if tokens := strings.Fields(raw); len(tokens) > 0 && tokens[0] == TokenFound {
		return Line{Kind: LineConnectFail, Raw: raw}
	}

	fields := strings.Split(raw, WireDelim)
	if fields[0] == deviceName || len(fields) != sensorCount {
		return Line{Kind: LineEcho, Raw: raw}
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Line{Kind: LineEcho, Raw: raw}
		}
		values[i] = v
	}
	return Line{Kind: LineData, Raw: raw, Fields: fields, Values: values}
}

// HasFault reports whether any value equals the firmware's 0.00 fault
// sentinel. The firmware emits an exact zero when a sensor read fails;
// a legitimate zero reading is indistinguishable from a fault here, so
// a range-aware check would need firmware confirmation first.
func HasFault(values []float64) bool {
	for _, v := range values {
		if v == 0 {
			return true
		}
	}
	return false
}

// Reading is one timestamped data frame. Fields hold the raw wire text
// and Values the parsed equivalents, both in sensor order.
type Reading struct {
	Time   time.Time
	Fields []string
	Values []float64
}
