package logic

import "time"

// Phase is one step of a status LED pattern.
type Phase struct {
	On       bool
	Duration time.Duration
}

var (
	blinkOK = []Phase{
		{true, 60 * time.Millisecond}, {false, 940 * time.Millisecond},
	}
	blinkLow = []Phase{
		{true, 80 * time.Millisecond}, {false, 120 * time.Millisecond},
		{true, 80 * time.Millisecond}, {false, 820 * time.Millisecond},
	}
	blinkBottom = []Phase{
		{true, 80 * time.Millisecond}, {false, 120 * time.Millisecond},
		{true, 80 * time.Millisecond}, {false, 120 * time.Millisecond},
		{true, 80 * time.Millisecond}, {false, 620 * time.Millisecond},
	}
	blinkFault = []Phase{
		{true, 800 * time.Millisecond}, {false, 200 * time.Millisecond},
	}
)

// BlinkPattern returns the LED pattern for a state: one slow blink for OK,
// two fast for LOW, three fast for BOTTOM, long-on/short-off for FAULT or
// while not ready.
func BlinkPattern(s State, ready bool) []Phase {
	if !ready {
		return blinkFault
	}
	switch s {
	case StateOK:
		return blinkOK
	case StateLow:
		return blinkLow
	case StateBottom:
		return blinkBottom
	default:
		return blinkFault
	}
}

// LEDAt reports whether the LED is lit at elapsed time into a repeating
// pattern.
func LEDAt(pattern []Phase, elapsed time.Duration) bool {
	var period time.Duration
	for _, p := range pattern {
		period += p.Duration
	}
	if period <= 0 {
		return false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	t := elapsed % period
	for _, p := range pattern {
		if t < p.Duration {
			return p.On
		}
		t -= p.Duration
	}
	return false
}

// LEDBetween reports whether any lit phase of the repeating pattern
// overlaps the interval (from, to]. A tick-driven heartbeat uses it so
// pulses shorter than the tick are not skipped.
func LEDBetween(pattern []Phase, from, to time.Duration) bool {
	if to <= from {
		return LEDAt(pattern, to)
	}
	var period time.Duration
	for _, p := range pattern {
		period += p.Duration
	}
	if period <= 0 {
		return false
	}
	if to-from >= period {
		for _, p := range pattern {
			if p.On && p.Duration > 0 {
				return true
			}
		}
		return false
	}

	// Walk phases from the cycle containing from until to.
	cycle := from - from%period
	if from < 0 {
		cycle = 0
		from = 0
	}
	for start := cycle; start < to; {
		for _, p := range pattern {
			end := start + p.Duration
			if p.On && end > from && start < to {
				return true
			}
			start = end
			if start >= to {
				break
			}
		}
	}
	return false
}
