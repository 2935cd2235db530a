package sensor

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// pollTimeout bounds how long a Read may wait for bytes.
const pollTimeout = 5 * time.Millisecond

// SerialPort is the UART connection to the sensor.
type SerialPort struct {
	name string
	conn serial.Port
}

// OpenSerial opens the sensor UART (8N1) with a short read timeout so that
// Read behaves as a non-blocking poll.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	conn, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := conn.SetReadTimeout(pollTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	return &SerialPort{name: name, conn: conn}, nil
}

// Read returns the bytes available within the poll timeout.
func (p *SerialPort) Read(buf []byte) (int, error) {
	n, err := p.conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", p.name, err)
	}
	return n, nil
}

// Close closes the port.
func (p *SerialPort) Close() error {
	return p.conn.Close()
}
