package protocol

import (
	"errors"
	"testing"

	"github.com/sweeney/envmon/internal/serialio"
)

func TestIdentifyWired(t *testing.T) {
	link := serialio.NewFakeLink([]string{"LabArd1"})

	role, name, err := Identify(link)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if role != RoleWired {
		t.Errorf("role: got %v, want RoleWired", role)
	}
	if name != "LabArd1" {
		t.Errorf("name: got %q, want %q", name, "LabArd1")
	}
}

func TestIdentifyCentral(t *testing.T) {
	link := serialio.NewFakeLink([]string{"BLE Central"})

	role, name, err := Identify(link)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if role != RoleCentral {
		t.Errorf("role: got %v, want RoleCentral", role)
	}
	if name != "" {
		t.Errorf("name: got %q, want empty", name)
	}
}

func TestIdentifySilentPort(t *testing.T) {
	link := serialio.NewFakeLink(nil)

	_, _, err := Identify(link)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("silent port: got %v, want ErrDeviceNotFound", err)
	}
}

func TestIdentifyEmptyLine(t *testing.T) {
	link := serialio.NewFakeLink([]string{""})

	_, _, err := Identify(link)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("empty line: got %v, want ErrDeviceNotFound", err)
	}
}

func TestIdentifyReadError(t *testing.T) {
	link := serialio.NewFakeLink(nil)
	link.ReadErr = errors.New("port gone")

	_, _, err := Identify(link)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrDeviceNotFound) {
		t.Error("hard read error should not map to ErrDeviceNotFound")
	}
}

func TestResolveSensors(t *testing.T) {
	// Echo line, then the header with the device name in its first field.
	link := serialio.NewFakeLink([]string{
		"LabArd1",
		"LabArd1_temp\thumid\tco2",
	})

	sensors, err := ResolveSensors(link, "LabArd1")
	if err != nil {
		t.Fatalf("ResolveSensors: %v", err)
	}
	want := []string{"LabArd1_temp", "humid", "co2"}
	if len(sensors) != len(want) {
		t.Fatalf("sensors: got %v, want %v", sensors, want)
	}
	for i := range want {
		if sensors[i] != want[i] {
			t.Errorf("sensor %d: got %q, want %q", i, sensors[i], want[i])
		}
	}
}

func TestResolveSensorsStrayLine(t *testing.T) {
	// A stray line without the device name is replaced by the next read.
	link := serialio.NewFakeLink([]string{
		"LabArd1",
		"noise from the boot sequence",
		"LabArd1-temp\thumid\tco2",
	})

	sensors, err := ResolveSensors(link, "LabArd1")
	if err != nil {
		t.Fatalf("ResolveSensors: %v", err)
	}
	if len(sensors) != 3 {
		t.Fatalf("sensors: got %v, want 3 entries", sensors)
	}
	if sensors[0] != "LabArd1-temp" {
		t.Errorf("sensor 0: got %q, want %q", sensors[0], "LabArd1-temp")
	}
}

func TestResolveSensorsDegenerateHeader(t *testing.T) {
	// A single-field line containing the name is the echo of a name
	// write, not the header; one more read picks up the real header.
	link := serialio.NewFakeLink([]string{
		"connected",
		"LabArd1",
		"temp\thumid\tco2",
	})

	sensors, err := ResolveSensors(link, "LabArd1")
	if err != nil {
		t.Fatalf("ResolveSensors: %v", err)
	}
	want := []string{"temp", "humid", "co2"}
	if len(sensors) != len(want) {
		t.Fatalf("sensors: got %v, want %v", sensors, want)
	}
	for i := range want {
		if sensors[i] != want[i] {
			t.Errorf("sensor %d: got %q, want %q", i, sensors[i], want[i])
		}
	}
}

func TestResolveSensorsTimeout(t *testing.T) {
	link := serialio.NewFakeLink([]string{"LabArd1"})

	_, err := ResolveSensors(link, "LabArd1")
	if err == nil {
		t.Fatal("expected error for missing header")
	}
	if !errors.Is(err, serialio.ErrTimeout) {
		t.Errorf("got %v, want wrapped ErrTimeout", err)
	}
}

func TestResolveSensorsTrimsFields(t *testing.T) {
	link := serialio.NewFakeLink([]string{
		"LabArd1",
		"LabArd1_temp \t humid\tco2 ",
	})

	sensors, err := ResolveSensors(link, "LabArd1")
	if err != nil {
		t.Fatalf("ResolveSensors: %v", err)
	}
	if sensors[1] != "humid" {
		t.Errorf("sensor 1: got %q, want %q", sensors[1], "humid")
	}
	if sensors[2] != "co2" {
		t.Errorf("sensor 2: got %q, want %q", sensors[2], "co2")
	}
}
