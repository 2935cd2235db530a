//go:build !linux

package ble

import "errors"

// BlueZLink is not available on non-Linux platforms.
type BlueZLink struct{}

// NewBlueZLink returns an error on non-Linux platforms.
func NewBlueZLink(name string, ev Events) (*BlueZLink, error) {
	return nil, errors.New("ble: not supported on this platform (requires Linux and BlueZ)")
}

// Notify is not implemented on non-Linux platforms.
func (l *BlueZLink) Notify(ConnHandle, []byte) error {
	return errors.New("ble: not supported")
}

// Advertise is not implemented on non-Linux platforms.
func (l *BlueZLink) Advertise() error {
	return errors.New("ble: not supported")
}

// Close is not implemented on non-Linux platforms.
func (l *BlueZLink) Close() error {
	return nil
}
