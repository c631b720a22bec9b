package serialio

import "time"

// Timeout is a scripted line value that makes ReadLine return ErrTimeout
// for that call.
const Timeout = "\x00timeout\x00"

// FakeLink is a test double that returns scripted lines.
type FakeLink struct {
	// Lines contains scripted lines to return from ReadLine, one per
	// call. A Timeout entry produces ErrTimeout instead of a line.
	// When the script is exhausted, ReadLine behaves like a silent
	// device and returns ErrTimeout.
	Lines []string

	// Writes records every Write payload.
	Writes [][]byte

	// Restarts counts Restart calls.
	Restarts int

	// Closed tracks if Close was called.
	Closed bool

	// ReadErr, if set, will be returned by every ReadLine.
	ReadErr error

	// WriteErr, if set, will be returned by every Write.
	WriteErr error

	index int
}

// NewFakeLink creates a FakeLink with the given scripted lines.
func NewFakeLink(lines []string) *FakeLink {
	return &FakeLink{Lines: lines}
}

// ReadLine returns the next scripted line.
func (f *FakeLink) ReadLine(timeout time.Duration) (string, error) {
	if f.ReadErr != nil {
		return "", f.ReadErr
	}
	if f.index >= len(f.Lines) {
		// Silent device. Yield briefly so a polling loop in a test
		// does not spin hot while waiting for a stop request.
		d := time.Millisecond
		if timeout < d {
			d = timeout
		}
		time.Sleep(d)
		return "", ErrTimeout
	}
	line := f.Lines[f.index]
	f.index++
	if line == Timeout {
		return "", ErrTimeout
	}
	return line, nil
}

// Write records the payload.
func (f *FakeLink) Write(p []byte) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Writes = append(f.Writes, append([]byte(nil), p...))
	return nil
}

// Restart counts the call. The scripted lines are not rewound; queue the
// post-restart lines with Append.
func (f *FakeLink) Restart() error {
	f.Restarts++
	return nil
}

// Close marks the link as closed.
func (f *FakeLink) Close() error {
	f.Closed = true
	return nil
}

// Append queues more scripted lines.
func (f *FakeLink) Append(lines ...string) {
	f.Lines = append(f.Lines, lines...)
}

// Reset rewinds the script to the beginning.
func (f *FakeLink) Reset() {
	f.index = 0
	f.Writes = nil
	f.Restarts = 0
	f.Closed = false
}
