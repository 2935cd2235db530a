// Package gpio provides the digital outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Line names one output.
type Line int

const (
	Master Line = iota // master interlock
	Pump               // pump-ok
	Heater             // heater-ok
	LED                // status LED
)

func (l Line) String() string {
	switch l {
	case Master:
		return "master"
	case Pump:
		return "pump"
	case Heater:
		return "heater"
	case LED:
		return "led"
	default:
		return fmt.Sprintf("line(%d)", int(l))
	}
}

// Interlocks are the active-low safety outputs, in drive order.
var Interlocks = []Line{Master, Pump, Heater}

// Safe is the stop level of an interlock output.
const Safe = 1

// Writer drives output lines.
type Writer interface {
	// Write sets line to value (0 or 1). Writes to a disabled line are
	// ignored.
	Write(line Line, value int) error

	// Close drives every interlock safe and releases the lines.
	Close() error
}

// Pins maps lines to BCM offsets. A negative offset disables the line.
type Pins struct {
	Master int
	Pump   int
	Heater int
	LED    int
}

// Offset returns the offset of line.
func (p Pins) Offset(l Line) int {
	switch l {
	case Master:
		return p.Master
	case Pump:
		return p.Pump
	case Heater:
		return p.Heater
	case LED:
		return p.LED
	default:
		return -1
	}
}

// Default pin assignment (BCM numbering).
const (
	PinMaster = 15
	PinPump   = 14
	PinHeater = 27
	PinLED    = 2
)
