// Command watertank-sensor reads the tank's ultrasonic level sensor, drives
// the pump and heater interlocks and serves the BLE command channel.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/watertank-sensor/internal/ble"
	"github.com/sweeney/watertank-sensor/internal/config"
	"github.com/sweeney/watertank-sensor/internal/controller"
	"github.com/sweeney/watertank-sensor/internal/gpio"
	"github.com/sweeney/watertank-sensor/internal/logging"
	"github.com/sweeney/watertank-sensor/internal/sched"
	"github.com/sweeney/watertank-sensor/internal/sensor"
	"github.com/sweeney/watertank-sensor/internal/watchdog"
)

// watchdogOff disables the hardware watchdog from the command line.
const watchdogOff = "off"

type options struct {
	configPath   string
	sensorPort   string
	gpioChip     string
	watchdog     string
	noBLE        bool
	logLevel     string
	printReading bool
}

// hardware opens the peripherals; tests replace it.
type hardware struct {
	openSensor  func(name string, baud int) (sensor.Port, error)
	openOutputs func(chip string, pins gpio.Pins) (gpio.Writer, error)
}

var realHardware = hardware{
	openSensor: func(name string, baud int) (sensor.Port, error) {
		p, err := sensor.OpenSerial(name, baud)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	openOutputs: func(chip string, pins gpio.Pins) (gpio.Writer, error) {
		w, err := gpio.NewRealWriter(chip, pins)
		if err != nil {
			return nil, err
		}
		return w, nil
	},
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "Configuration file (.json, .yaml or .yml)")
	flag.StringVar(&opts.sensorPort, "sensor-port", "", "Sensor UART device (overrides config)")
	flag.StringVar(&opts.gpioChip, "gpio-chip", "", "GPIO chip (overrides config)")
	flag.StringVar(&opts.watchdog, "watchdog", "", `Watchdog device (overrides config, "off" disables)`)
	flag.BoolVar(&opts.noBLE, "no-ble", false, "Disable the BLE command channel")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level: err, warn or info (overrides config)")
	flag.BoolVar(&opts.printReading, "print-reading", false, "Print one sensor reading and exit")

	flag.Parse()

	if err := run(opts, realHardware); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(opts options, hw hardware) error {
	store := config.NewStore(opts.configPath)
	cfg, err := store.Load()
	var recovered *config.RecoveredError
	if errors.As(err, &recovered) {
		logging.Warnf("config: %v", err)
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = applyOverrides(cfg, opts)
	lvl, _ := logging.ParseLevel(cfg.LogLevel)
	logging.SetLevel(lvl)

	if opts.printReading {
		return printReading(cfg, hw)
	}

	// Interlocks first: lines are requested at the safe level and Close
	// drives them safe on every later failure or panic.
	out, err := hw.openOutputs(cfg.GPIOChip, pinsFrom(cfg))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer out.Close()

	port, err := hw.openSensor(cfg.UARTPort, cfg.UARTBaud)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	s := sensor.New(port)
	defer s.Close()

	wd := openWatchdog(cfg.WatchdogPath)
	defer wd.Close()

	posts := &sched.Queue{}
	deps := controller.Deps{
		Config:   cfg,
		Store:    store,
		Sensor:   s,
		Outputs:  out,
		Posts:    posts,
		Watchdog: wd,
	}

	var tr *ble.Transport
	if cfg.BLEEnabled {
		var link *ble.BlueZLink
		tr, link, err = ble.Open(cfg.BLEName, posts, ble.Options{
			QueueMax:     cfg.TXQueueMax,
			RXBufferMax:  cfg.RXBufferMax,
			SendInterval: time.Duration(cfg.BLESendIntervalMs) * time.Millisecond,
		})
		if err != nil {
			// The interlocks must keep working without the radio.
			logging.Warnf("ble: %v, continuing without command channel", err)
			tr = nil
		} else {
			defer link.Close()
			deps.Channel = tr
		}
	}

	ctrl := controller.New(deps, time.Now())
	if tr != nil {
		tr.SetHandler(ctrl.HandleCommand)
		if err := tr.Start(); err != nil {
			logging.Errorf("ble: %v", err)
		} else {
			logging.Infof("ble: advertising as %q", ble.AdvertisedName(cfg.BLEName, 1))
		}
	}

	logging.Infof("started: sensor=%s@%d gpio=%s sample_hz=%d low=%.0f%% bottom=%.0f%%",
		cfg.UARTPort, cfg.UARTBaud, cfg.GPIOChip, cfg.SampleHz, cfg.LowPct, cfg.BottomPct)

	ticker := time.NewTicker(ctrl.Period())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, time.Now, ticker.C, sigCh)
}

// printReading is the -print-reading diagnostic. It leaves the GPIO lines
// alone so it can run next to a stopped daemon without claiming them.
func printReading(cfg config.Config, hw hardware) error {
	port, err := hw.openSensor(cfg.UARTPort, cfg.UARTBaud)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	s := sensor.New(port)
	defer s.Close()

	mm, err := readOnce(s, 2*time.Second, time.Now, time.Sleep)
	if err != nil {
		return err
	}
	fmt.Printf("distance: %d mm (%s)\n", mm, s.Mode())
	return nil
}

// runLoop ticks the controller until a signal arrives. Outputs are safe
// when it returns.
func runLoop(ctrl *controller.Controller, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logging.Infof("received %v, shutting down", s)
			if err := ctrl.SafeAll(); err != nil {
				logging.Errorf("outputs: %v", err)
			}
			return nil

		case <-tick:
			ctrl.Tick(now())
		}
	}
}

// applyOverrides applies the command-line flags on top of the loaded
// configuration. Overrides are not persisted.
func applyOverrides(cfg config.Config, opts options) config.Config {
	if opts.sensorPort != "" {
		cfg.UARTPort = opts.sensorPort
	}
	if opts.gpioChip != "" {
		cfg.GPIOChip = opts.gpioChip
	}
	if opts.watchdog != "" {
		cfg.WatchdogPath = opts.watchdog
	}
	if opts.noBLE {
		cfg.BLEEnabled = false
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg
}

// pinsFrom maps the interlock settings onto line offsets; disabled
// outputs are not claimed.
func pinsFrom(cfg config.Config) gpio.Pins {
	pins := gpio.Pins{Master: -1, Pump: -1, Heater: -1, LED: cfg.LEDPin}
	if cfg.InterlockActive {
		pins.Master = cfg.InterlockPin
	}
	if cfg.UsePumpOK {
		pins.Pump = cfg.PumpOKPin
	}
	if cfg.UseHeaterOK {
		pins.Heater = cfg.HeaterOKPin
	}
	return pins
}

// openWatchdog opens the hardware watchdog. A missing device is logged
// and the loop runs unguarded.
func openWatchdog(path string) watchdog.Feeder {
	if path == "" || path == watchdogOff {
		return watchdog.Nop{}
	}
	wd, err := watchdog.Open(path)
	if err != nil {
		logging.Warnf("watchdog: %v, running without", err)
		return watchdog.Nop{}
	}
	logging.Infof("watchdog: armed %s", path)
	return wd
}

// readOnce polls s until a reading arrives or timeout passes.
func readOnce(s *sensor.Sensor, timeout time.Duration, now func() time.Time, sleep func(time.Duration)) (int, error) {
	deadline := now().Add(timeout)
	for {
		t := now()
		if mm, ok := s.Poll(t); ok {
			return mm, nil
		}
		if !t.Before(deadline) {
			return 0, fmt.Errorf("no sensor reading within %v", timeout)
		}
		sleep(50 * time.Millisecond)
	}
}
