package serialio

import (
	"fmt"
	"runtime"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a candidate serial port.
type PortInfo struct {
	Name    string
	IsUSB   bool
	Product string
}

// ListPorts returns candidate serial ports for the current platform.
// If enumeration yields nothing, a static per-OS list of common port
// names is returned instead.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	var ports []PortInfo
	for _, d := range details {
		ports = append(ports, PortInfo{Name: d.Name, IsUSB: d.IsUSB, Product: d.Product})
	}

	if len(ports) == 0 {
		for _, name := range commonPorts() {
			ports = append(ports, PortInfo{Name: name})
		}
	}
	return ports, nil
}

func commonPorts() []string {
	switch runtime.GOOS {
	case "windows":
		var ports []string
		for i := 1; i <= 20; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	case "linux":
		return []string{
			"/dev/ttyUSB0", "/dev/ttyUSB1",
			"/dev/ttyACM0", "/dev/ttyACM1",
		}
	case "darwin":
		return []string{
			"/dev/cu.usbserial", "/dev/cu.usbmodem",
			"/dev/tty.usbserial", "/dev/tty.usbmodem",
		}
	default:
		return nil
	}
}
