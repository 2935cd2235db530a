// Package sensor recovers distance readings from the ultrasonic level sensor.
// The sensor speaks either a 4-byte binary frame or a free-form ASCII
// decimal stream; the format is detected from the data itself.
package sensor

import "time"

// Wire format constants.
const (
	FrameHeader = 0xFF // binary frame sentinel
	FrameLen    = 4    // [0xFF][reserved][mm_hi][mm_lo]

	// MaxMM is the exclusive upper bound of a plausible reading; readings
	// must lie strictly within (0, MaxMM).
	MaxMM = 10000

	// RedetectAfter is how long a detected mode stays locked before the
	// next read re-evaluates it (tolerates a swapped device).
	RedetectAfter = 2000 * time.Millisecond

	// maxDigits bounds an ASCII digit run; longer runs cannot be < MaxMM.
	maxDigits = 5
)

// Mode is the detected wire format.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeBinary
	ModeASCII
)

func (m Mode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	case ModeASCII:
		return "ascii"
	default:
		return "unknown"
	}
}

// Parser decodes raw sensor bytes. It never fails loudly: a buffer that
// holds no plausible reading simply yields ok == false.
// Not safe for concurrent use.
type Parser struct {
	mode       Mode
	detectedAt time.Time
}

// Mode returns the currently locked wire format.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Parse returns the distance in millimeters found in buf, if any.
func (p *Parser) Parse(buf []byte, now time.Time) (int, bool) {
	if len(buf) == 0 {
		return 0, false
	}

	if p.mode == ModeUnknown || now.Sub(p.detectedAt) > RedetectAfter {
		if m := detect(buf); m != ModeUnknown {
			p.mode = m
			p.detectedAt = now
		}
	}

	switch p.mode {
	case ModeBinary:
		return parseBinary(buf)
	case ModeASCII:
		return parseASCII(buf)
	default:
		return 0, false
	}
}

// detect samples buf: a leading valid binary frame locks binary mode, any
// ASCII digit locks ASCII mode.
func detect(buf []byte) Mode {
	if len(buf) >= FrameLen && buf[0] == FrameHeader {
		if inRange(decodeFrame(buf)) {
			return ModeBinary
		}
	}
	for _, b := range buf {
		if isDigit(b) {
			return ModeASCII
		}
	}
	return ModeUnknown
}

// parseBinary scans every sentinel-aligned window and returns the first
// in-range value. Malformed frames are skipped.
func parseBinary(buf []byte) (int, bool) {
	for i := 0; i+FrameLen <= len(buf); i++ {
		if buf[i] != FrameHeader {
			continue
		}
		if v := decodeFrame(buf[i:]); inRange(v) {
			return v, true
		}
	}
	return 0, false
}

// parseASCII assembles digit runs at every non-digit boundary (and at the
// end of the buffer) and returns the last in-range value. Leading zeros do
// not count toward maxDigits.
func parseASCII(buf []byte) (int, bool) {
	var (
		last   int
		found  bool
		inRun  bool
		value  int
		digits int
	)
	flush := func() {
		if inRun && digits <= maxDigits && inRange(value) {
			last, found = value, true
		}
		inRun, value, digits = false, 0, 0
	}

	for _, b := range buf {
		if !isDigit(b) {
			flush()
			continue
		}
		inRun = true
		if digits == 0 && b == '0' {
			continue
		}
		digits++
		if digits <= maxDigits {
			value = value*10 + int(b-'0')
		}
	}
	flush()
	return last, found
}

// EncodeFrame encodes mm as a binary sensor frame.
func EncodeFrame(mm int) []byte {
	return []byte{FrameHeader, 0x00, byte(mm >> 8), byte(mm)}
}

func decodeFrame(frame []byte) int {
	return int(frame[2])<<8 | int(frame[3])
}

func inRange(mm int) bool {
	return mm > 0 && mm < MaxMM
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
