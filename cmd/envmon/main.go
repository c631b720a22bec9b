// Command envmon logs timestamped readings from an Arduino environment
// monitor on a serial port to rotating day files, and publishes them to
// MQTT. The device is either a wired sensor peripheral or a BLE central
// gateway; for a central, envmon scans for advertising peripherals and
// connects to one before logging starts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/envmon/internal/logfile"
	"github.com/sweeney/envmon/internal/monitor"
	"github.com/sweeney/envmon/internal/mqtt"
	"github.com/sweeney/envmon/internal/protocol"
	"github.com/sweeney/envmon/internal/serialio"
	"github.com/sweeney/envmon/internal/status"
	"github.com/sweeney/envmon/internal/web"
)

func main() {
	port := flag.String("port", "", "serial port of the monitor (e.g. /dev/ttyACM0, COM4)")
	baud := flag.Int("baud", 9600, "serial baud rate")
	delim := flag.String("delim", "csv", `log file delimiter ("csv" or "tab")`)
	path := flag.String("path", "data", "root directory for log files")
	scanN := flag.Int("scan", monitor.DefaultScanCount, "max peripherals to scan for (BLE central only)")
	peripheral := flag.String("peripheral", "", "peripheral name to connect to (default: first discovered)")
	rename := flag.String("rename", "", "rename a wired device before logging (8 chars max)")
	broker := flag.String("broker", "", "MQTT broker address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":8093", "HTTP status address (empty to disable)")
	listPorts := flag.Bool("list-ports", false, "list candidate serial ports and exit")
	printState := flag.Bool("print-state", false, "identify the device, print its state, and exit")

	flag.Parse()

	if *listPorts {
		if err := printPorts(); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	fileDelim, err := resolveDelim(*delim)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *port == "" {
		log.Fatal("fatal: -port is required (try -list-ports)")
	}

	if err := run(*port, *baud, fileDelim, *path, *scanN, *peripheral, *rename, *broker, *heartbeat, *httpAddr, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(port string, baud int, delim, path string, scanN int, peripheral, rename, broker string, heartbeat time.Duration, httpAddr string, printState bool) error {
	// Open the serial link and identify the device
	link, err := serialio.Open(port, baud)
	if err != nil {
		return fmt.Errorf("open serial port: %w", err)
	}

	mon, err := monitor.New(link, delim)
	if err != nil {
		link.Close()
		return fmt.Errorf("identify device on %s: %w", port, err)
	}
	defer mon.Close()

	// Print state mode
	if printState {
		printDeviceState(mon)
		return nil
	}

	if rename != "" {
		if err := mon.Rename(rename); err != nil {
			return err
		}
		log.Printf("device renamed to %s", mon.DeviceName())
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Port:        port,
		Baud:        baud,
		Delim:       delim,
		LogRoot:     path,
		Broker:      broker,
		HTTPAddr:    httpAddr,
		HeartbeatMs: heartbeat.Milliseconds(),
	})
	mon.SetTracker(tracker)
	mon.SetHeartbeat(heartbeat)

	// Initialize MQTT
	var publisher *mqtt.RealPublisher
	if broker != "" {
		publisher = mqtt.NewRealPublisher(broker)
		defer publisher.Close()
		mon.SetPublisher(publisher)
		tracker.SetMQTTConnected(publisher.IsConnected())

		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	// A central needs a peripheral before anything can be logged
	if mon.Role() == protocol.RoleCentral {
		if err := connectCentral(mon, scanN, peripheral); err != nil {
			return err
		}
	}

	log.Printf("device ready: role=%s name=%s sensors=%v", mon.Role(), mon.DeviceName(), mon.Sensors())

	if err := mon.Start(path); err != nil {
		return err
	}
	log.Printf("logging to %s", path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	waitCh := make(chan error, 1)
	go func() { waitCh <- mon.Wait() }()

	select {
	case s := <-sigCh:
		log.Printf("received %v, shutting down", s)
		mon.Stop()
		publishShutdown(publisher, tracker, signalName(s))
		return nil

	case err := <-waitCh:
		if err != nil {
			// Data fault or filesystem failure; lifecycle event was
			// already published by the pipeline.
			return err
		}
		log.Printf("logging stopped by device event")
		publishShutdown(publisher, tracker, "DEVICE_EVENT")
		return nil
	}
}

func connectCentral(mon *monitor.Monitor, scanN int, peripheral string) error {
	log.Printf("BLE central: scanning for up to %d peripherals", scanN)
	found, err := mon.Scan(scanN)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if len(found) == 0 {
		return fmt.Errorf("no peripherals discovered")
	}
	log.Printf("discovered peripherals: %v", found)

	target := peripheral
	if target == "" {
		target = found[0]
	}
	log.Printf("connecting to %s", target)
	if err := mon.ConnectPeripheral(target); err != nil {
		return err
	}
	log.Printf("connected to %s", mon.DeviceName())
	return nil
}

func publishShutdown(publisher *mqtt.RealPublisher, tracker *status.Tracker, reason string) {
	if publisher == nil {
		return
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

func printDeviceState(mon *monitor.Monitor) {
	fmt.Printf("role: %s\n", mon.Role())
	if name := mon.DeviceName(); name != "" {
		fmt.Printf("name: %s\n", name)
	}
	if sensors := mon.Sensors(); len(sensors) > 0 {
		fmt.Printf("sensors: %v\n", sensors)
	}
}

func printPorts() error {
	ports, err := serialio.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.Product != "" {
			fmt.Printf("%s\t%s\n", p.Name, p.Product)
		} else {
			fmt.Println(p.Name)
		}
	}
	return nil
}

// resolveDelim converts the -delim flag value into a file delimiter.
func resolveDelim(s string) (string, error) {
	switch s {
	case "csv", "comma", ",":
		return logfile.DelimComma, nil
	case "tab", "tsv", "\t":
		return logfile.DelimTab, nil
	}
	return "", fmt.Errorf("unknown delimiter %q (want csv or tab)", s)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
