package sensor

import (
	"time"

	"github.com/sweeney/watertank-sensor/internal/logging"
)

// ReadSize is the largest chunk pulled from the port per poll.
const ReadSize = 32

// MaxConsecutiveFailures is how many polls in a row may yield no reading
// before the sensor is reported invalid.
const MaxConsecutiveFailures = 5

// Port is the platform's "read available bytes" capability.
// Read must not block for longer than a short poll timeout; returning
// (0, nil) means no data is available.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Sensor polls a Port and runs the bytes through a Parser, tracking
// consecutive failures to derive a validity flag.
type Sensor struct {
	port     Port
	parser   Parser
	buf      [ReadSize]byte
	failures int
	valid    bool
	portErr  bool // a port error was already logged in this failure episode
}

// New creates a Sensor reading from port. The sensor starts invalid.
func New(port Port) *Sensor {
	return &Sensor{port: port}
}

// Poll reads whatever is available and returns a reading if one was found.
// Port errors and malformed data are absorbed: they only count as failures.
func (s *Sensor) Poll(now time.Time) (int, bool) {
	n, err := s.port.Read(s.buf[:])
	if err != nil {
		if !s.portErr {
			logging.Warnf("sensor: read error: %v", err)
			s.portErr = true
		}
		s.fail()
		return 0, false
	}
	return s.Inject(s.buf[:n], now)
}

// Inject runs raw bytes through the same parse and validity path as Poll.
// Pipeline test mode uses it to exercise the parser with synthetic data.
func (s *Sensor) Inject(raw []byte, now time.Time) (int, bool) {
	mm, ok := s.parser.Parse(raw, now)
	if !ok {
		s.fail()
		return 0, false
	}
	s.failures = 0
	s.valid = true
	s.portErr = false
	return mm, true
}

func (s *Sensor) fail() {
	s.failures++
	if s.failures > MaxConsecutiveFailures {
		s.valid = false
	}
}

// Valid reports whether the sensor produced a reading recently enough.
func (s *Sensor) Valid() bool {
	return s.valid
}

// Mode returns the wire format the parser has locked onto.
func (s *Sensor) Mode() Mode {
	return s.parser.Mode()
}

// Close releases the underlying port.
func (s *Sensor) Close() error {
	return s.port.Close()
}
