// Package logic contains the pure decision logic of the water tank module:
// level estimation, the fill-state machine and the output policy.
// This package has NO external dependencies (no GPIO, BLE, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State is the debounced fill state of the tank.
type State string

const (
	StateOK     State = "OK"
	StateLow    State = "LOW"
	StateBottom State = "BOTTOM"
	StateFault  State = "FAULT"
)

// Sample is a single distance measurement. Valid is false when the sensor
// produced no reading.
type Sample struct {
	MM    int
	Valid bool
}

// Reading is the filtered output of one accepted sample.
type Reading struct {
	EMA     float64 // smoothed distance in mm
	Percent float64 // fill level, 0..100
}

// Thresholds are the fill-level boundaries of the state machine, in percent.
type Thresholds struct {
	Low        float64
	Bottom     float64
	Hysteresis float64
}

// Params configures an Estimator.
type Params struct {
	MinMM int
	MaxMM int

	Window int     // median window; at least 3 samples are always kept
	Alpha  float64 // EMA weight of the newest median

	// Calibration anchors in mm; nil falls back to the observed anchors,
	// then to the plausibility bounds.
	CalFullMM  *float64
	CalEmptyMM *float64
	AutoLearn  bool

	Thresholds Thresholds
	Debounce   time.Duration
	Timeout    time.Duration
}
