package internal

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/envmon/internal/logfile"
	"github.com/sweeney/envmon/internal/monitor"
	"github.com/sweeney/envmon/internal/mqtt"
	"github.com/sweeney/envmon/internal/protocol"
	"github.com/sweeney/envmon/internal/serialio"
	"github.com/sweeney/envmon/internal/status"
)

// TestIntegrationWiredFlow runs the whole wired path on fakes: handshake,
// logging, MQTT publishing, and status tracking.
func TestIntegrationWiredFlow(t *testing.T) {
	link := serialio.NewFakeLink([]string{
		// Boot and handshake
		"LabArd1",
		"initialising SD card",
		"LabArd1",
		"temp\thumid\tco2",
		// Steady state
		"21.5\t45.0\t400.0",
		"21.6\t45.1\t400.1",
		"21.7\t45.2\t400.2",
	})

	m, err := monitor.New(link, logfile.DelimComma)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	tr := status.NewTracker(time.Now(), status.Config{Port: "/dev/ttyACM0", Baud: 9600})
	pub := mqtt.NewFakePublisher()
	m.SetTracker(tr)
	m.SetPublisher(pub)

	root := t.TempDir()
	if err := m.Start(root); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for all three frames to land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.Snapshot().Rows >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	m.Stop()
	if err := m.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	snap := tr.Snapshot()
	if snap.Rows != 3 {
		t.Fatalf("rows: got %d, want 3", snap.Rows)
	}
	if snap.State != string(monitor.StateWiredReady) {
		t.Errorf("state after stop: got %q", snap.State)
	}

	// One MQTT reading per logged row, with sensor names attached.
	if len(pub.Readings) != 3 {
		t.Fatalf("published readings: got %d, want 3", len(pub.Readings))
	}
	var p mqtt.Payload
	if err := json.Unmarshal(pub.Payloads[2], &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Reading.Sensors["co2"] != 400.2 {
		t.Errorf("co2: got %v", p.Reading.Sensors["co2"])
	}

	// The day file has the header and all three rows, raw text intact.
	data, err := os.ReadFile(snap.LogFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines: got %d, want 4\n%s", len(lines), data)
	}
	if lines[0] != "timestamp,temp,humid,co2" {
		t.Errorf("header: got %q", lines[0])
	}
	if !strings.HasSuffix(lines[3], ",21.7,45.2,400.2") {
		t.Errorf("last row: got %q", lines[3])
	}
}

// TestIntegrationCentralFlow runs the BLE central path: scan, connect,
// log, then a data fault that tears the connection down.
func TestIntegrationCentralFlow(t *testing.T) {
	link := serialio.NewFakeLink([]string{
		"BLE Central",
		// Scan
		"Scanning for peripherals...",
		"advertisement 1: PeriphA",
		"advertisement 2: PeriphB",
		"advertisement 3: PeriphA",
		// Connect
		"PeriphA",
		"Connected",
		"Discovering attributes...",
		"Attributes discovered",
		"Subscribed to characteristic",
		"PeriphA",
		"PeriphA",
		"temp\thumid",
		// Steady state, ending in a fault sentinel
		"21.5\t45.0",
		"0.00\t45.0",
	})

	m, err := monitor.New(link, logfile.DelimComma)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	pub := mqtt.NewFakePublisher()
	m.SetPublisher(pub)

	found, err := m.Scan(3)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(found) != 2 || found[0] != "PeriphA" || found[1] != "PeriphB" {
		t.Fatalf("found: got %v, want [PeriphA PeriphB]", found)
	}

	if err := m.ConnectPeripheral(found[0]); err != nil {
		t.Fatalf("ConnectPeripheral: %v", err)
	}
	if m.DeviceName() != "PeriphA" {
		t.Errorf("device: got %q", m.DeviceName())
	}

	if err := m.Start(t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The fault sentinel ends the session with an error and forces a
	// disconnect.
	if err := m.Wait(); !errors.Is(err, protocol.ErrDataFault) {
		t.Fatalf("Wait: got %v, want ErrDataFault", err)
	}
	if m.State() != monitor.StateFaulted {
		t.Errorf("state: got %v, want Faulted", m.State())
	}
	if link.Restarts != 1 {
		t.Errorf("restarts: got %d, want 1", link.Restarts)
	}

	// Lifecycle events: BLE_CONNECTED from the connect, DATA_FAULT from
	// the sentinel.
	events := make(map[string]int)
	for _, ev := range pub.SystemEvents {
		events[ev.Event]++
	}
	if events["BLE_CONNECTED"] != 1 {
		t.Errorf("BLE_CONNECTED events: got %d, want 1", events["BLE_CONNECTED"])
	}
	if events["DATA_FAULT"] != 1 {
		t.Errorf("DATA_FAULT events: got %d, want 1", events["DATA_FAULT"])
	}

	// The good frame made it to MQTT; the faulty one did not.
	if len(pub.Readings) != 1 {
		t.Errorf("published readings: got %d, want 1", len(pub.Readings))
	}
}

// TestIntegrationPeripheralDisconnect checks that a device-initiated
// disconnect ends logging without an error and the central can scan
// again afterwards.
func TestIntegrationPeripheralDisconnect(t *testing.T) {
	link := serialio.NewFakeLink([]string{
		"BLE Central",
		"PeriphA",
		"Connected",
		"Discovering attributes...",
		"Attributes discovered",
		"Subscribed to characteristic",
		"PeriphA",
		"PeriphA",
		"temp\thumid",
		"21.5\t45.0",
		"Peripheral disconnected.",
	})

	m, err := monitor.New(link, logfile.DelimComma)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	if err := m.ConnectPeripheral("PeriphA"); err != nil {
		t.Fatalf("ConnectPeripheral: %v", err)
	}
	if err := m.Start(t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Wait(); err != nil {
		t.Fatalf("Wait: got %v, want nil", err)
	}
	if m.State() != monitor.StateCentralIdle {
		t.Errorf("state: got %v, want CentralIdle", m.State())
	}

	// Another scan is possible from idle.
	link.Append(
		"Scanning for peripherals...",
		"advertisement 1: PeriphC",
	)
	found, err := m.Scan(1)
	if err != nil {
		t.Fatalf("Scan after disconnect: %v", err)
	}
	if len(found) != 1 || found[0] != "PeriphC" {
		t.Errorf("found: got %v, want [PeriphC]", found)
	}
}
