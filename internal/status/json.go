package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/watertank-sensor/internal/config"
	"github.com/sweeney/watertank-sensor/internal/logic"
)

// StatusJSON is the periodic telemetry payload.
type StatusJSON struct {
	Evt           string   `json:"evt"`
	State         string   `json:"state"`
	Pct           *float64 `json:"pct"`
	EMA           *float64 `json:"ema_mm"`
	ObsMin        *float64 `json:"obs_min"`
	ObsMax        *float64 `json:"obs_max"`
	Valid         bool     `json:"valid"`
	Ready         bool     `json:"ready"`
	TestActive    bool     `json:"test_active"`
	Outputs       Outputs  `json:"out"`
	UptimeSeconds int64    `json:"uptime_s"`
}

// InfoJSON answers INFO?.
type InfoJSON struct {
	State      string   `json:"state"`
	Pct        *float64 `json:"pct"`
	EMA        *float64 `json:"ema_mm"`
	Ready      bool     `json:"ready"`
	Valid      bool     `json:"sensor_valid"`
	Mode       string   `json:"mode"`
	CalEmptyMM *float64 `json:"cal_empty_mm"`
	CalFullMM  *float64 `json:"cal_full_mm"`
	ObsMin     *float64 `json:"obs_min"`
	ObsMax     *float64 `json:"obs_max"`
	TestActive bool     `json:"test_active"`
	Conns      int      `json:"conns"`
	Timestamp  string   `json:"timestamp"`
}

// ConfigJSON answers CFG?: the settings a dashboard needs to verify the
// device, not the full persisted file.
type ConfigJSON struct {
	UARTPort        string   `json:"uart_port"`
	SampleHz        int      `json:"sample_hz"`
	BottomPct       float64  `json:"bottom_pct"`
	LowPct          float64  `json:"low_pct"`
	HysteresisPct   float64  `json:"hysteresis_pct"`
	InterlockActive bool     `json:"interlock_active"`
	UsePumpOK       bool     `json:"use_pump_ok"`
	UseHeaterOK     bool     `json:"use_heater_ok"`
	MinMM           int      `json:"min_mm"`
	MaxMM           int      `json:"max_mm"`
	TimeoutMs       int      `json:"timeout_ms"`
	AllowPumpAtLow  bool     `json:"allow_pump_at_low"`
	CalEmptyMM      *float64 `json:"cal_empty_mm"`
	CalFullMM       *float64 `json:"cal_full_mm"`
	BLEEnabled      bool     `json:"ble_enabled"`
	BLEName         string   `json:"ble_name"`
}

// configKeys is the number of fields in ConfigJSON.
const configKeys = 16

// TestJSON is the test-mode payload for TEST? and test telemetry.
type TestJSON struct {
	Evt          string   `json:"evt"`
	Msg          string   `json:"msg,omitempty"`
	Active       bool     `json:"active"`
	Pipeline     bool     `json:"pipe"`
	AllowOutputs bool     `json:"out"`
	PeriodS      int      `json:"period_s"`
	MM           *int     `json:"mm,omitempty"`
	Pct          *float64 `json:"pct,omitempty"`
	State        string   `json:"state,omitempty"`
}

// EventJSON is a short event notification.
type EventJSON struct {
	Evt     string   `json:"evt"`
	Msg     string   `json:"msg,omitempty"`
	Where   string   `json:"where,omitempty"`
	State   string   `json:"state,omitempty"`
	Pct     *float64 `json:"pct,omitempty"`
	NumKeys int      `json:"num_keys,omitempty"`
}

// FormatStatus returns the telemetry payload.
func FormatStatus(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{
		Evt:           "status",
		State:         string(snap.State),
		Pct:           snap.Percent,
		EMA:           snap.EMA,
		ObsMin:        snap.ObsMin,
		ObsMax:        snap.ObsMax,
		Valid:         snap.SensorValid,
		Ready:         snap.Ready,
		TestActive:    snap.Test.Active,
		Outputs:       snap.Outputs,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
	})
	return data
}

// FormatInfo returns the INFO? response.
func FormatInfo(snap Snapshot) []byte {
	data, _ := json.Marshal(InfoJSON{
		State:      string(snap.State),
		Pct:        snap.Percent,
		EMA:        snap.EMA,
		Ready:      snap.Ready,
		Valid:      snap.SensorValid,
		Mode:       snap.Mode,
		CalEmptyMM: snap.CalEmptyMM,
		CalFullMM:  snap.CalFullMM,
		ObsMin:     snap.ObsMin,
		ObsMax:     snap.ObsMax,
		TestActive: snap.Test.Active,
		Conns:      snap.Connections,
		Timestamp:  snap.Now.UTC().Format(time.RFC3339),
	})
	return data
}

// FormatConfig returns the CFG? response preceded by its cfg_sent marker.
func FormatConfig(cfg config.Config) (marker, body []byte) {
	marker = FormatEvent(EventJSON{Evt: "sys", Msg: "cfg_sent", NumKeys: configKeys})
	body, _ = json.Marshal(ConfigJSON{
		UARTPort:        cfg.UARTPort,
		SampleHz:        cfg.SampleHz,
		BottomPct:       cfg.BottomPct,
		LowPct:          cfg.LowPct,
		HysteresisPct:   cfg.HysteresisPct,
		InterlockActive: cfg.InterlockActive,
		UsePumpOK:       cfg.UsePumpOK,
		UseHeaterOK:     cfg.UseHeaterOK,
		MinMM:           cfg.MinMM,
		MaxMM:           cfg.MaxMM,
		TimeoutMs:       cfg.TimeoutMs,
		AllowPumpAtLow:  cfg.AllowPumpAtLow,
		CalEmptyMM:      cfg.CalEmptyMM,
		CalFullMM:       cfg.CalFullMM,
		BLEEnabled:      cfg.BLEEnabled,
		BLEName:         cfg.BLEName,
	})
	return marker, body
}

// FormatTest returns a test-mode payload. msg is empty for TEST? and
// telemetry.
func FormatTest(snap Snapshot, msg string) []byte {
	t := TestJSON{
		Evt:          "test",
		Msg:          msg,
		Active:       snap.Test.Active,
		Pipeline:     snap.Test.Pipeline,
		AllowOutputs: snap.Test.AllowOutputs,
		PeriodS:      snap.Test.PeriodS,
	}
	if msg == "" && snap.Test.Active {
		t.MM = snap.Test.MM
		t.Pct = snap.Percent
		t.State = string(snap.State)
	}
	data, _ := json.Marshal(t)
	return data
}

// FormatEvent returns an event payload.
func FormatEvent(e EventJSON) []byte {
	data, _ := json.Marshal(e)
	return data
}

// FormatState announces a committed state change. pct is always present,
// null before the first reading.
func FormatState(state logic.State, pct *float64) []byte {
	data, _ := json.Marshal(struct {
		Evt   string   `json:"evt"`
		State string   `json:"state"`
		Pct   *float64 `json:"pct"`
	}{"state", string(state), pct})
	return data
}

// FormatError reports a non-fatal fault in part where.
func FormatError(where, msg string) []byte {
	return FormatEvent(EventJSON{Evt: "err", Where: where, Msg: msg})
}
