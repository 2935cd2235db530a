// Package watchdog feeds the hardware watchdog that resets the board when
// the control loop stalls.
package watchdog

import (
	"fmt"
	"os"
)

// Feeder keeps a watchdog alive.
type Feeder interface {
	// Feed restarts the watchdog countdown.
	Feed() error

	// Close disarms the watchdog where the driver allows it.
	Close() error
}

// Device is the Linux watchdog character device.
type Device struct {
	f *os.File
}

// Open arms the watchdog at path, usually /dev/watchdog. The countdown
// starts immediately.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog: %w", err)
	}
	return &Device{f: f}, nil
}

// Feed writes a keepalive byte.
func (d *Device) Feed() error {
	if _, err := d.f.Write([]byte{0}); err != nil {
		return fmt.Errorf("feed watchdog: %w", err)
	}
	return nil
}

// Close writes the magic close character so a clean exit does not reset
// the board, then closes the device.
func (d *Device) Close() error {
	_, werr := d.f.Write([]byte("V"))
	cerr := d.f.Close()
	if werr != nil {
		return fmt.Errorf("disarm watchdog: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close watchdog: %w", cerr)
	}
	return nil
}

// Nop is a Feeder for hosts without a watchdog.
type Nop struct{}

func (Nop) Feed() error  { return nil }
func (Nop) Close() error { return nil }

// Fake counts feeds for test assertions.
type Fake struct {
	Feeds     int
	Closed    bool
	FeedError error
}

// Feed counts the call.
func (f *Fake) Feed() error {
	if f.FeedError != nil {
		return f.FeedError
	}
	f.Feeds++
	return nil
}

// Close marks the fake closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
