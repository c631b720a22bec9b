package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/envmon/internal/serialio"
)

// Identify determines the role of a freshly opened link. A wired device
// announces its own name as its first line; a central announces
// "BLE Central". No line within the probe timeout means there is no
// monitor device on the port at all.
func Identify(link serialio.Link) (Role, string, error) {
	line, err := link.ReadLine(ProbeTimeout)
	if err != nil {
		if errors.Is(err, serialio.ErrTimeout) {
			return 0, "", ErrDeviceNotFound
		}
		return 0, "", fmt.Errorf("identify: %w", err)
	}
	if line == "" {
		return 0, "", ErrDeviceNotFound
	}
	if line == TokenCentral {
		return RoleCentral, "", nil
	}
	return RoleWired, line, nil
}

// ResolveSensors reads the sensor header for deviceName and returns the
// ordered sensor names. The firmware's line ordering is not
// deterministic across boot paths, so the header is resynchronised
// rather than read at a fixed offset: one expected echo line is
// discarded; a line whose first field lacks the device name is treated
// as stray and replaced by the next line; and a degenerate single-field
// header triggers one more read.
func ResolveSensors(link serialio.Link, deviceName string) ([]string, error) {
	if _, err := link.ReadLine(HeaderTimeout); err != nil {
		return nil, fmt.Errorf("discard echo: %w", err)
	}

	line, err := link.ReadLine(HeaderTimeout)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !strings.Contains(strings.Split(line, WireDelim)[0], deviceName) {
		line, err = link.ReadLine(HeaderTimeout)
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if len(strings.Split(line, WireDelim)) == 1 {
		line, err = link.ReadLine(HeaderTimeout)
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}

	fields := strings.Split(line, WireDelim)
	sensors := make([]string, len(fields))
	for i, f := range fields {
		sensors[i] = strings.Trim(strings.TrimSpace(f), WireDelim)
	}
	return sensors, nil
}
