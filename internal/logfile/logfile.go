// Package logfile writes sensor rows to per-device, per-day delimited
// files: <root>/<device>/<YYYY-MM-DD>.{csv|txt}.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File delimiters. The wire always separates fields with tabs; the file
// delimiter is chosen independently by the caller.
const (
	DelimComma = ","
	DelimTab   = "\t"
)

// RowTimeFormat is the timestamp layout at the start of each row.
const RowTimeFormat = "2006-01-02 15:04:05.000000"

// Ext returns the file extension used for a delimiter.
func Ext(delim string) string {
	if delim == DelimComma {
		return ".csv"
	}
	return ".txt"
}

// Manager resolves and appends to the log file for one device. The file
// for "now" is recomputed on every write, so a new calendar day rotates
// to a new file with a fresh header without any explicit rollover event.
type Manager struct {
	Root   string
	Device string
	Delim  string
}

// NewManager creates a Manager rooted at root for the named device.
func NewManager(root, device, delim string) *Manager {
	return &Manager{Root: root, Device: device, Delim: delim}
}

// Dir returns the device's log directory.
func (m *Manager) Dir() string {
	return filepath.Join(m.Root, m.Device)
}

// Resolve returns the log file path for the given day.
func (m *Manager) Resolve(day time.Time) string {
	return filepath.Join(m.Dir(), day.Format("2006-01-02")+Ext(m.Delim))
}

// Touch creates the device directory and the day's file with its header
// row if they do not exist yet, and returns the file's path. Header-once
// relies on file presence: a file removed externally mid-session gets a
// fresh header on the next Touch.
func (m *Manager) Touch(now time.Time, sensors []string) (string, error) {
	if err := os.MkdirAll(m.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	path := m.Resolve(now)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		header := "timestamp" + m.Delim + strings.Join(sensors, m.Delim) + "\n"
		if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
	}
	return path, nil
}

// WriteRow appends one data row, creating the device directory and the
// day's file (with its header row) as needed. fields carry the raw wire
// text of each value so the file reproduces exactly what the device
// sent. The file is opened and closed per row, so rows already written
// survive an abrupt termination.
func (m *Manager) WriteRow(now time.Time, sensors, fields []string) (string, error) {
	path, err := m.Touch(now, sensors)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	row := now.Format(RowTimeFormat) + m.Delim + strings.Join(fields, m.Delim) + "\n"
	if _, err := f.Write([]byte(row)); err != nil {
		f.Close()
		return "", fmt.Errorf("append row: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close log file: %w", err)
	}
	return path, nil
}
