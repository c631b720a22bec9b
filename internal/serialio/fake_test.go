package serialio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeLinkScript(t *testing.T) {
	link := NewFakeLink([]string{"first", "second"})

	line, err := link.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "first" {
		t.Errorf("line: got %q, want %q", line, "first")
	}

	line, err = link.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "second" {
		t.Errorf("line: got %q, want %q", line, "second")
	}

	// Exhausted script behaves like a silent device.
	_, err = link.ReadLine(time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("exhausted ReadLine: got %v, want ErrTimeout", err)
	}
}

func TestFakeLinkScriptedTimeout(t *testing.T) {
	link := NewFakeLink([]string{"before", Timeout, "after"})

	if line, _ := link.ReadLine(time.Second); line != "before" {
		t.Errorf("line: got %q, want %q", line, "before")
	}

	_, err := link.ReadLine(time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("scripted timeout: got %v, want ErrTimeout", err)
	}

	// The script continues past the timeout entry.
	line, err := link.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine after timeout: %v", err)
	}
	if line != "after" {
		t.Errorf("line: got %q, want %q", line, "after")
	}
}

func TestFakeLinkRecordsWrites(t *testing.T) {
	link := NewFakeLink(nil)

	if err := link.Write([]byte("LabArd1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := link.Write([]byte("Periph2")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(link.Writes) != 2 {
		t.Fatalf("writes recorded: got %d, want 2", len(link.Writes))
	}
	if string(link.Writes[0]) != "LabArd1" {
		t.Errorf("first write: got %q, want %q", link.Writes[0], "LabArd1")
	}
	if string(link.Writes[1]) != "Periph2" {
		t.Errorf("second write: got %q, want %q", link.Writes[1], "Periph2")
	}
}

func TestFakeLinkInjectedErrors(t *testing.T) {
	readErr := errors.New("read failed")
	writeErr := errors.New("write failed")
	link := NewFakeLink([]string{"line"})
	link.ReadErr = readErr
	link.WriteErr = writeErr

	if _, err := link.ReadLine(time.Second); !errors.Is(err, readErr) {
		t.Errorf("ReadLine: got %v, want injected error", err)
	}
	if err := link.Write([]byte("x")); !errors.Is(err, writeErr) {
		t.Errorf("Write: got %v, want injected error", err)
	}
}

func TestFakeLinkRestartAndClose(t *testing.T) {
	link := NewFakeLink(nil)

	if err := link.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if err := link.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if link.Restarts != 2 {
		t.Errorf("restarts: got %d, want 2", link.Restarts)
	}

	if err := link.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !link.Closed {
		t.Error("link should be marked closed")
	}
}

func TestFakeLinkAppendAndReset(t *testing.T) {
	link := NewFakeLink([]string{"one"})
	link.ReadLine(time.Second)
	link.Append("two")

	line, err := link.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine after Append: %v", err)
	}
	if line != "two" {
		t.Errorf("line: got %q, want %q", line, "two")
	}

	link.Write([]byte("w"))
	link.Restart()
	link.Reset()

	if line, _ := link.ReadLine(time.Second); line != "one" {
		t.Errorf("after Reset: got %q, want %q", line, "one")
	}
	if link.Writes != nil || link.Restarts != 0 || link.Closed {
		t.Error("Reset should clear recorded state")
	}
}
