// Package ble provides the Nordic-UART style command and telemetry channel:
// line-framed command intake and a queued, chunked, paced notification path.
package ble

import "time"

// Nordic UART service and characteristic UUIDs.
const (
	ServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	RXUUID      = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E" // write, central to device
	TXUUID      = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E" // notify, device to central
)

const (
	// ChunkSize is the notification payload unit. It fits the default
	// ATT MTU of every central.
	ChunkSize = 18

	// ChunkDelay paces consecutive chunks.
	ChunkDelay = 5 * time.Millisecond

	// DefaultQueueMax bounds the TX queue in entries.
	DefaultQueueMax = 32

	// CoalesceLimit is the largest entry produced by merging payloads.
	CoalesceLimit = 240

	// smallPayload entries are merged with their successor on drain.
	smallPayload = 64

	// DefaultRXBufferMax bounds the RX accumulator in bytes.
	DefaultRXBufferMax = 512
)

// ConnHandle identifies one central connection.
type ConnHandle uint16

// Link is the radio capability the transport sends through.
type Link interface {
	// Notify sends one chunk to conn.
	Notify(conn ConnHandle, chunk []byte) error

	// Advertise (re)starts connectable advertising.
	Advertise() error
}

// Events are delivered by the radio stack, possibly from its own goroutine.
type Events interface {
	Connected(conn ConnHandle)
	Disconnected(conn ConnHandle)
	Received(conn ConnHandle, data []byte)
}

// Handler processes one complete command line on the control loop.
type Handler func(line string, now time.Time)

// Notifier is the outbound half of the transport.
type Notifier interface {
	Notify(payload []byte)
	NotifyPriority(payload []byte)
	ClearBacklog()
}
