//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives outputs on actual hardware through the Linux GPIO
// character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[Line]*gpiocdev.Line
}

// NewRealWriter opens chip and requests every enabled line as an output.
// Interlocks start at the safe level and the LED starts off.
func NewRealWriter(chipName string, pins Pins) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &RealWriter{chip: chip, lines: make(map[Line]*gpiocdev.Line)}
	for _, l := range []Line{Master, Pump, Heater, LED} {
		offset := pins.Offset(l)
		if offset < 0 {
			continue
		}
		initial := Safe
		if l == LED {
			initial = 0
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer("watertank-"+l.String()))
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", l, offset, err)
		}
		w.lines[l] = line
	}
	return w, nil
}

// Write sets line to value.
func (w *RealWriter) Write(l Line, value int) error {
	line, ok := w.lines[l]
	if !ok {
		return nil
	}
	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("write %s pin: %w", l, err)
	}
	return nil
}

// Close drives the interlocks safe, then reconfigures every line as an
// input with pull-up so the external drivers see the safe level while the
// process is gone.
func (w *RealWriter) Close() error {
	var errs []error

	for _, l := range Interlocks {
		if err := w.Write(l, Safe); err != nil {
			errs = append(errs, err)
		}
	}
	for l, line := range w.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l, err))
		}
	}
	w.lines = map[Line]*gpiocdev.Line{}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
