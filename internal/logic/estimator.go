package logic

import (
	"sort"
	"time"
)

// minSpanMM keeps the percent mapping sane when the anchors nearly coincide.
const minSpanMM = 5.0

// Estimator filters distance samples into a fill percent and derives the
// debounced fill state. Not safe for concurrent use.
type Estimator struct {
	params Params

	window []int
	ema    float64
	hasEMA bool

	obsMin, obsMax float64
	hasObs         bool

	pct    float64
	hasPct bool

	state        State
	pending      State
	pendingSince time.Time
	lastValid    time.Time
}

// NewEstimator creates an estimator in StateFault. now anchors the sensor
// timeout, so a sensor that never reports faults one timeout after boot.
func NewEstimator(p Params, now time.Time) *Estimator {
	return &Estimator{
		params:    p,
		state:     StateFault,
		lastValid: now,
	}
}

// SetParams replaces the parameters, e.g. after a calibration command.
// Filter state is kept.
func (e *Estimator) SetParams(p Params) {
	e.params = p
}

// Params returns the active parameters.
func (e *Estimator) Params() Params {
	return e.params
}

// Reset returns the estimator to its boot state: filter window, EMA,
// observed anchors and percent are cleared and the state is FAULT again.
// The timeout restarts at now.
func (e *Estimator) Reset(now time.Time) {
	e.window = e.window[:0]
	e.hasEMA = false
	e.hasObs = false
	e.hasPct = false
	e.state = StateFault
	e.pending = ""
	e.lastValid = now
}

// windowSize is the bounded median window length.
func (e *Estimator) windowSize() int {
	if e.params.Window < 3 {
		return 3
	}
	return e.params.Window
}

// Ingest runs one sample through plausibility gate, median, EMA and percent
// mapping, in that order. Rejected samples return ok == false and leave the
// filter untouched.
func (e *Estimator) Ingest(s Sample) (Reading, bool) {
	if !s.Valid || s.MM < e.params.MinMM || s.MM > e.params.MaxMM {
		return Reading{}, false
	}

	e.window = append(e.window, s.MM)
	if n := e.windowSize(); len(e.window) > n {
		e.window = append(e.window[:0], e.window[len(e.window)-n:]...)
	}
	med := median(e.window)

	if e.hasEMA {
		a := e.params.Alpha
		e.ema = a*med + (1-a)*e.ema
	} else {
		e.ema = med
		e.hasEMA = true
	}

	if e.params.AutoLearn {
		if !e.hasObs {
			e.obsMin, e.obsMax = e.ema, e.ema
			e.hasObs = true
		} else {
			if e.ema < e.obsMin {
				e.obsMin = e.ema
			}
			if e.ema > e.obsMax {
				e.obsMax = e.ema
			}
		}
	}

	empty, full := e.anchors()
	span := empty - full
	if span < minSpanMM {
		span = minSpanMM
	}
	pct := clamp(100*(empty-e.ema)/span, 0, 100)

	e.pct, e.hasPct = pct, true
	return Reading{EMA: e.ema, Percent: pct}, true
}

// anchors resolves the effective empty and full distances: calibration
// first, then observed extremes, then the plausibility bounds.
func (e *Estimator) anchors() (empty, full float64) {
	empty, full = float64(e.params.MaxMM), float64(e.params.MinMM)
	if e.hasObs {
		empty, full = e.obsMax, e.obsMin
	}
	if e.params.CalEmptyMM != nil {
		empty = *e.params.CalEmptyMM
	}
	if e.params.CalFullMM != nil {
		full = *e.params.CalFullMM
	}
	return empty, full
}

// Update advances the state machine at now. gotReading reports whether a
// valid percent was produced during this tick. It returns the committed
// state and whether it changed.
//
// A silent sensor beyond the timeout commits FAULT at once; any other
// change must be desired continuously for the debounce interval.
func (e *Estimator) Update(now time.Time, gotReading bool) (State, bool) {
	if gotReading {
		e.lastValid = now
	} else if now.Sub(e.lastValid) > e.params.Timeout {
		e.pending = ""
		return e.commit(StateFault)
	}

	desired := e.state
	if e.hasPct {
		desired = NextState(e.state, e.pct, e.params.Thresholds)
	}

	if desired == e.state {
		e.pending = ""
		return e.state, false
	}

	if e.pending != desired {
		e.pending = desired
		e.pendingSince = now
	}
	if now.Sub(e.pendingSince) >= e.params.Debounce {
		e.pending = ""
		return e.commit(desired)
	}
	return e.state, false
}

func (e *Estimator) commit(s State) (State, bool) {
	if s == e.state {
		return s, false
	}
	e.state = s
	return s, true
}

// State returns the committed state.
func (e *Estimator) State() State {
	return e.state
}

// Percent returns the last computed fill percent.
func (e *Estimator) Percent() (float64, bool) {
	return e.pct, e.hasPct
}

// EMA returns the smoothed distance in mm.
func (e *Estimator) EMA() (float64, bool) {
	return e.ema, e.hasEMA
}

// Observed returns the auto-learned min/max distances.
func (e *Estimator) Observed() (min, max float64, ok bool) {
	return e.obsMin, e.obsMax, e.hasObs
}

// NextState is the hysteresis state machine: given the committed state cur
// and the fill percent p it returns the desired state. Exits require
// crossing further than entries.
func NextState(cur State, p float64, t Thresholds) State {
	low, bottom, h := t.Low, t.Bottom, t.Hysteresis

	switch cur {
	case StateOK:
		if p <= low-h {
			return StateLow
		}
		return StateOK
	case StateLow:
		if p <= bottom-h {
			return StateBottom
		}
		if p >= low+h {
			return StateOK
		}
		return StateLow
	case StateBottom:
		if p >= bottom+2*h {
			if p <= low-h {
				return StateLow
			}
			return StateOK
		}
		return StateBottom
	default: // FAULT: no hysteresis on entry
		if p <= bottom {
			return StateBottom
		}
		if p <= low {
			return StateLow
		}
		return StateOK
	}
}

// median sorts a copy of xs; even lengths average the two middle values.
func median(xs []int) float64 {
	a := make([]int, len(xs))
	copy(a, xs)
	sort.Ints(a)
	n := len(a)
	mid := n / 2
	if n%2 == 1 {
		return float64(a[mid])
	}
	return float64(a[mid-1]+a[mid]) / 2
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
