// Package config holds the persisted device configuration of the water tank
// module: compiled-in defaults, validation, and an atomically written store.
package config

import "github.com/sweeney/watertank-sensor/internal/logging"

// Config is the complete device configuration. Field names in the persisted
// file follow the json/yaml tags; unknown keys are ignored and missing keys
// keep their default value.
type Config struct {
	// Sensor UART
	UARTPort string `json:"uart_port" yaml:"uart_port"`
	UARTBaud int    `json:"uart_baud" yaml:"uart_baud"`

	// Sampling and filtering
	SampleHz int     `json:"sample_hz" yaml:"sample_hz"`
	Window   int     `json:"window" yaml:"window"`
	EMAAlpha float64 `json:"ema_alpha" yaml:"ema_alpha"`

	// Plausibility window (mm)
	MinMM int `json:"min_mm" yaml:"min_mm"`
	MaxMM int `json:"max_mm" yaml:"max_mm"`

	TimeoutMs int `json:"timeout_ms" yaml:"timeout_ms"`

	// Level policy in percent of fill
	BottomPct     float64 `json:"bottom_pct" yaml:"bottom_pct"`
	LowPct        float64 `json:"low_pct" yaml:"low_pct"`
	HysteresisPct float64 `json:"hysteresis_pct" yaml:"hysteresis_pct"`
	DebounceMs    int     `json:"debounce_ms" yaml:"debounce_ms"`

	// Interlocks (active-low: 0 = allow, 1 = safe)
	GPIOChip        string `json:"gpio_chip" yaml:"gpio_chip"`
	InterlockActive bool   `json:"interlock_active" yaml:"interlock_active"`
	InterlockPin    int    `json:"interlock_pin" yaml:"interlock_pin"`
	PumpOKPin       int    `json:"pump_ok_pin" yaml:"pump_ok_pin"`
	HeaterOKPin     int    `json:"heater_ok_pin" yaml:"heater_ok_pin"`
	UsePumpOK       bool   `json:"use_pump_ok" yaml:"use_pump_ok"`
	UseHeaterOK     bool   `json:"use_heater_ok" yaml:"use_heater_ok"`
	AllowPumpAtLow  bool   `json:"allow_pump_at_low" yaml:"allow_pump_at_low"`
	LEDPin          int    `json:"led_pin" yaml:"led_pin"` // -1 disables the status LED

	// Wireless link
	BLEEnabled        bool   `json:"ble_enabled" yaml:"ble_enabled"`
	BLEName           string `json:"ble_name" yaml:"ble_name"`
	BLESendIntervalMs int    `json:"ble_send_interval_ms" yaml:"ble_send_interval_ms"`
	RXBufferMax       int    `json:"rx_buffer_max" yaml:"rx_buffer_max"`
	TXQueueMax        int    `json:"tx_queue_max" yaml:"tx_queue_max"`

	// Calibration anchors; nil means "not calibrated".
	CalAutoLearn bool     `json:"cal_auto_learn" yaml:"cal_auto_learn"`
	CalEmptyMM   *float64 `json:"cal_empty_mm" yaml:"cal_empty_mm"`
	CalFullMM    *float64 `json:"cal_full_mm" yaml:"cal_full_mm"`

	// Storage and boot
	PersistPath  string `json:"persist_path" yaml:"persist_path"`
	BootGraceS   int    `json:"boot_grace_s" yaml:"boot_grace_s"`
	WatchdogPath string `json:"watchdog_path" yaml:"watchdog_path"`
	LogLevel     string `json:"log_level" yaml:"log_level"` // err, warn or info

	// Test mode
	TestPeriodS     int     `json:"test_period_s" yaml:"test_period_s"`
	TestBinary      bool    `json:"test_binary" yaml:"test_binary"`
	TestNoiseMM     float64 `json:"test_noise_mm" yaml:"test_noise_mm"`
	TestOutlierPct  float64 `json:"test_outlier_pct" yaml:"test_outlier_pct"`
	TestDropoutPct  float64 `json:"test_dropout_pct" yaml:"test_dropout_pct"`
	TestCorruptPct  float64 `json:"test_corrupt_pct" yaml:"test_corrupt_pct"`
	TestSplitPct    float64 `json:"test_split_pct" yaml:"test_split_pct"`
	TestChunkJitter int     `json:"test_chunk_jitter" yaml:"test_chunk_jitter"`
}

// Floors applied by Validate.
const (
	MinSampleHz    = 1
	MinTimeoutMs   = 200
	MinDebounceMs  = 50
	MinRXBufferMax = 64
	MinTXQueueMax  = 4
	MinTestPeriodS = 1
)

// DefaultPath is the canonical location of the persisted configuration.
const DefaultPath = "config.json"

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		UARTPort: "/dev/ttyS0",
		UARTBaud: 9600,

		SampleHz: 8,
		Window:   5,
		EMAAlpha: 0.25,

		MinMM: 30,  // sensor blind zone
		MaxMM: 220, // tank height plus margin

		TimeoutMs: 1200,

		BottomPct:     10,
		LowPct:        30,
		HysteresisPct: 4,
		DebounceMs:    300,

		GPIOChip:        "gpiochip0",
		InterlockActive: true,
		InterlockPin:    15,
		PumpOKPin:       14,
		HeaterOKPin:     27,
		UsePumpOK:       true,
		UseHeaterOK:     true,
		AllowPumpAtLow:  true,
		LEDPin:          2,

		BLEEnabled:        true,
		BLEName:           "VBMDSCSWT",
		BLESendIntervalMs: 0,
		RXBufferMax:       512,
		TXQueueMax:        32,

		CalAutoLearn: true,
		CalEmptyMM:   Float(190),
		CalFullMM:    Float(50),

		PersistPath:  DefaultPath,
		BootGraceS:   3,
		WatchdogPath: "/dev/watchdog",
		LogLevel:     "info",

		TestPeriodS:     20,
		TestNoiseMM:     2,
		TestOutlierPct:  2,
		TestDropoutPct:  2,
		TestCorruptPct:  1,
		TestSplitPct:    20,
		TestChunkJitter: 2,
	}
}

// Float returns a pointer to v, for the nullable calibration anchors.
func Float(v float64) *float64 {
	return &v
}

// Validate returns a copy of c with every field brought into its legal
// range. It is idempotent: Validate(Validate(c)) == Validate(c).
func Validate(c Config) Config {
	if c.MinMM > c.MaxMM {
		c.MinMM, c.MaxMM = c.MaxMM, c.MinMM
	}
	if c.MinMM < 0 {
		c.MinMM = 0
	}
	if c.MaxMM < c.MinMM {
		c.MaxMM = c.MinMM
	}

	c.SampleHz = maxInt(c.SampleHz, MinSampleHz)
	c.TimeoutMs = maxInt(c.TimeoutMs, MinTimeoutMs)
	c.DebounceMs = maxInt(c.DebounceMs, MinDebounceMs)
	c.Window = maxInt(c.Window, 1)
	c.UARTBaud = maxInt(c.UARTBaud, 1200)
	c.RXBufferMax = maxInt(c.RXBufferMax, MinRXBufferMax)
	c.TXQueueMax = maxInt(c.TXQueueMax, MinTXQueueMax)
	c.TestPeriodS = maxInt(c.TestPeriodS, MinTestPeriodS)
	c.BootGraceS = maxInt(c.BootGraceS, 0)
	c.BLESendIntervalMs = maxInt(c.BLESendIntervalMs, 0)
	c.TestChunkJitter = maxInt(c.TestChunkJitter, 0)

	if !(c.EMAAlpha > 0) {
		c.EMAAlpha = 0.01
	}
	if c.EMAAlpha > 1 {
		c.EMAAlpha = 1
	}

	if !(c.HysteresisPct >= 0) {
		c.HysteresisPct = 0
	}
	c.LowPct = clamp(c.LowPct, 1, 100)
	c.BottomPct = clamp(c.BottomPct, 0, 100)
	if c.BottomPct >= c.LowPct {
		c.BottomPct = c.LowPct - 1
	}

	c.TestNoiseMM = clamp(c.TestNoiseMM, 0, 1000)
	c.TestOutlierPct = clamp(c.TestOutlierPct, 0, 100)
	c.TestDropoutPct = clamp(c.TestDropoutPct, 0, 100)
	c.TestCorruptPct = clamp(c.TestCorruptPct, 0, 100)
	c.TestSplitPct = clamp(c.TestSplitPct, 0, 100)

	if c.PersistPath == "" {
		c.PersistPath = DefaultPath
	}
	lvl, _ := logging.ParseLevel(c.LogLevel)
	c.LogLevel = lvl.String()
	return c
}

func maxInt(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

// clamp also maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if !(v >= lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
