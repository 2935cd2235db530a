package main

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/watertank-sensor/internal/config"
	"github.com/sweeney/watertank-sensor/internal/controller"
	"github.com/sweeney/watertank-sensor/internal/gpio"
	"github.com/sweeney/watertank-sensor/internal/logic"
	"github.com/sweeney/watertank-sensor/internal/sensor"
	"github.com/sweeney/watertank-sensor/internal/watchdog"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// recordingWriter remembers whether the pump was ever allowed.
type recordingWriter struct {
	*gpio.FakeWriter
	pumpAllowed bool
}

func (w *recordingWriter) Write(l gpio.Line, v int) error {
	if l == gpio.Pump && v == 0 {
		w.pumpAllowed = true
	}
	return w.FakeWriter.Write(l, v)
}

func newController(t *testing.T, chunks ...[]byte) (*controller.Controller, *recordingWriter, *watchdog.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.BootGraceS = 0
	out := &recordingWriter{FakeWriter: gpio.NewFakeWriter()}
	wd := &watchdog.Fake{}
	ctrl := controller.New(controller.Deps{
		Config:   cfg,
		Sensor:   sensor.New(sensor.NewFakePort(chunks...)),
		Outputs:  out,
		Watchdog: wd,
	}, t0)
	return ctrl, out, wd
}

// runRunLoop drives runLoop for nTicks and then delivers signal.
func runRunLoop(t *testing.T, ctrl *controller.Controller, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(ctrl, fakeClock(t0.Add(125*time.Millisecond), 125*time.Millisecond), tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopEnergizesWhenFull(t *testing.T) {
	ctrl, out, wd := newController(t, []byte("50\r\n"))

	err := runRunLoop(t, ctrl, 10, syscall.SIGTERM)
	require.NoError(t, err)

	assert.True(t, out.pumpAllowed, "full tank allows loads while running")
	assert.True(t, out.AllSafe(), "shutdown forces loads safe")
	assert.Equal(t, logic.StateOK, ctrl.State())
	assert.Equal(t, 10, wd.Feeds)
}

func TestRunLoopSilentSensorStaysSafe(t *testing.T) {
	ctrl, out, _ := newController(t)

	err := runRunLoop(t, ctrl, 20, syscall.SIGINT)
	require.NoError(t, err)

	assert.False(t, out.pumpAllowed)
	assert.True(t, out.AllSafe())
	assert.Equal(t, logic.StateFault, ctrl.State())
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()

	got := applyOverrides(cfg, options{})
	assert.Equal(t, cfg, got)

	got = applyOverrides(cfg, options{
		sensorPort: "/dev/ttyAMA0",
		gpioChip:   "gpiochip4",
		watchdog:   watchdogOff,
		noBLE:      true,
		logLevel:   "warn",
	})
	assert.Equal(t, "/dev/ttyAMA0", got.UARTPort)
	assert.Equal(t, "gpiochip4", got.GPIOChip)
	assert.Equal(t, watchdogOff, got.WatchdogPath)
	assert.False(t, got.BLEEnabled)
	assert.Equal(t, "warn", got.LogLevel)
}

func TestPinsFrom(t *testing.T) {
	cfg := config.Default()
	pins := pinsFrom(cfg)
	assert.Equal(t, gpio.Pins{Master: 15, Pump: 14, Heater: 27, LED: 2}, pins)

	cfg.InterlockActive = false
	cfg.UseHeaterOK = false
	cfg.LEDPin = -1
	pins = pinsFrom(cfg)
	assert.Equal(t, gpio.Pins{Master: -1, Pump: 14, Heater: -1, LED: -1}, pins)
}

func TestOpenWatchdog(t *testing.T) {
	assert.Equal(t, watchdog.Nop{}, openWatchdog(""))
	assert.Equal(t, watchdog.Nop{}, openWatchdog(watchdogOff))
	assert.Equal(t, watchdog.Nop{}, openWatchdog(filepath.Join(t.TempDir(), "missing", "watchdog")))

	path := filepath.Join(t.TempDir(), "watchdog")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	wd := openWatchdog(path)
	assert.IsType(t, &watchdog.Device{}, wd)
	require.NoError(t, wd.Close())
}

func TestReadOnce(t *testing.T) {
	var slept time.Duration
	sleep := func(d time.Duration) { slept += d }

	s := sensor.New(sensor.NewFakePort(nil, nil, []byte("123\r\n")))
	mm, err := readOnce(s, 2*time.Second, fakeClock(t0, 50*time.Millisecond), sleep)
	require.NoError(t, err)
	assert.Equal(t, 123, mm)
	assert.Equal(t, 100*time.Millisecond, slept)

	s = sensor.New(sensor.NewFakePort())
	_, err = readOnce(s, time.Second, fakeClock(t0, 100*time.Millisecond), sleep)
	assert.ErrorContains(t, err, "no sensor reading")
}

func TestRunSensorFailureLeavesOutputsSafe(t *testing.T) {
	out := gpio.NewFakeWriter()
	out.Levels[gpio.Pump] = 0 // still allowing after a crashed run
	hw := hardware{
		openOutputs: func(string, gpio.Pins) (gpio.Writer, error) { return out, nil },
		openSensor: func(string, int) (sensor.Port, error) {
			return nil, errors.New("no such device")
		},
	}

	err := run(options{configPath: filepath.Join(t.TempDir(), "config.yaml"), noBLE: true}, hw)
	require.ErrorContains(t, err, "init sensor")
	assert.True(t, out.Closed)
	assert.True(t, out.AllSafe())
}

func TestRunClaimsOutputsBeforeSensor(t *testing.T) {
	opened := false
	hw := hardware{
		openOutputs: func(string, gpio.Pins) (gpio.Writer, error) {
			return nil, errors.New("chip busy")
		},
		openSensor: func(string, int) (sensor.Port, error) {
			opened = true
			return sensor.NewFakePort(), nil
		},
	}

	err := run(options{configPath: filepath.Join(t.TempDir(), "config.yaml"), noBLE: true}, hw)
	require.ErrorContains(t, err, "init gpio")
	assert.False(t, opened)
}

func TestRunPrintReadingLeavesGPIOAlone(t *testing.T) {
	port := sensor.NewFakePort([]byte("123\r\n"))
	hw := hardware{
		openOutputs: func(string, gpio.Pins) (gpio.Writer, error) {
			t.Error("gpio claimed by -print-reading")
			return gpio.NewFakeWriter(), nil
		},
		openSensor: func(string, int) (sensor.Port, error) { return port, nil },
	}

	err := run(options{configPath: filepath.Join(t.TempDir(), "config.yaml"), printReading: true}, hw)
	require.NoError(t, err)
	assert.True(t, port.Closed)
}
