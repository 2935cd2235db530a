// Package status builds the JSON payloads the module pushes over the
// wireless channel: periodic telemetry, command responses and events.
package status

import (
	"time"

	"github.com/sweeney/watertank-sensor/internal/logic"
)

// Outputs are the active-low drive levels of the interlocks.
type Outputs struct {
	Master int `json:"master"`
	Pump   int `json:"pump"`
	Heater int `json:"heater"`
}

// Test describes the test-mode generator.
type Test struct {
	Active       bool
	Pipeline     bool
	AllowOutputs bool
	PeriodS      int
	MM           *int // last synthetic level
}

// Snapshot is a point-in-time view of the controller.
// It is a value type and safe to keep after the tick that built it.
type Snapshot struct {
	State       logic.State
	Percent     *float64
	EMA         *float64
	ObsMin      *float64
	ObsMax      *float64
	SensorValid bool
	Mode        string
	Ready       bool
	Outputs     Outputs
	Test        Test

	CalFullMM  *float64
	CalEmptyMM *float64

	Connections int
	Backlog     int

	StartTime time.Time
	Now       time.Time
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Round1 returns v rounded to one decimal, nil when ok is false.
func Round1(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	r := float64(int64(v*10+sign(v)*0.5)) / 10
	return &r
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
