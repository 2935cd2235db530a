// Package controller owns the module's state and runs the cooperative
// control tick: sensing, output policy, telemetry and heartbeat.
package controller

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sweeney/watertank-sensor/internal/ble"
	"github.com/sweeney/watertank-sensor/internal/config"
	"github.com/sweeney/watertank-sensor/internal/gpio"
	"github.com/sweeney/watertank-sensor/internal/logging"
	"github.com/sweeney/watertank-sensor/internal/logic"
	"github.com/sweeney/watertank-sensor/internal/sched"
	"github.com/sweeney/watertank-sensor/internal/sensor"
	"github.com/sweeney/watertank-sensor/internal/status"
	"github.com/sweeney/watertank-sensor/internal/watchdog"
)

// TimeoutReportInterval rate-limits sensor timeout notifications.
const TimeoutReportInterval = 2 * time.Second

// Saver persists the configuration.
type Saver interface {
	Save(cfg config.Config) error
}

// Channel is the wireless command/telemetry channel as the controller
// sees it.
type Channel interface {
	ble.Notifier
	// Service dispatches pending commands and sends queued payloads.
	Service(now time.Time)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Config   config.Config
	Store    Saver
	Sensor   *sensor.Sensor
	Outputs  gpio.Writer
	Channel  Channel         // nil disables telemetry
	Posts    *sched.Queue    // radio callbacks deferred to the tick; may be nil
	Watchdog watchdog.Feeder // nil for none
	Rand     *rand.Rand      // test-mode generator; nil seeds from the clock
}

// Controller owns the configuration, estimator, outputs and test mode.
// All methods must be called from the control loop.
type Controller struct {
	cfg    config.Config
	store  Saver
	sensor *sensor.Sensor
	est    *logic.Estimator
	out    gpio.Writer
	ch     Channel
	posts  *sched.Queue
	wd     watchdog.Feeder
	test   *testGen

	start     time.Time
	ready     bool
	lastValid time.Time
	lastDiag  time.Time

	applied   bool
	lastInput logic.PolicyInput
	intent    logic.Intent

	ticks    int
	lastBeat time.Time
	led      int

	wdFailed bool
}

// New builds a Controller. Interlocks are driven safe immediately; the
// first tick applies the policy.
func New(d Deps, now time.Time) *Controller {
	c := &Controller{
		cfg:       config.Validate(d.Config),
		store:     d.Store,
		sensor:    d.Sensor,
		out:       d.Outputs,
		ch:        d.Channel,
		posts:     d.Posts,
		wd:        d.Watchdog,
		start:     now,
		lastValid: now,
		lastBeat:  now,
		led:       -1,
	}
	if c.ch == nil {
		c.ch = nopChannel{}
	}
	if c.posts == nil {
		c.posts = &sched.Queue{}
	}
	if c.wd == nil {
		c.wd = watchdog.Nop{}
	}
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	c.test = &testGen{rng: rng}
	c.est = logic.NewEstimator(paramsFrom(c.cfg), now)
	if err := c.SafeAll(); err != nil {
		logging.Errorf("outputs: %v", err)
	}
	return c
}

// paramsFrom maps the configuration onto estimator parameters.
func paramsFrom(cfg config.Config) logic.Params {
	return logic.Params{
		MinMM:      cfg.MinMM,
		MaxMM:      cfg.MaxMM,
		Window:     cfg.Window,
		Alpha:      cfg.EMAAlpha,
		CalFullMM:  cfg.CalFullMM,
		CalEmptyMM: cfg.CalEmptyMM,
		AutoLearn:  cfg.CalAutoLearn,
		Thresholds: logic.Thresholds{
			Low:        cfg.LowPct,
			Bottom:     cfg.BottomPct,
			Hysteresis: cfg.HysteresisPct,
		},
		Debounce: time.Duration(cfg.DebounceMs) * time.Millisecond,
		Timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
}

// Period is the base tick interval.
func (c *Controller) Period() time.Duration {
	return time.Second / time.Duration(c.cfg.SampleHz)
}

// Config returns the active configuration.
func (c *Controller) Config() config.Config {
	return c.cfg
}

// State returns the committed fill state.
func (c *Controller) State() logic.State {
	return c.est.State()
}

// Ready reports whether the boot grace period is over and a reading exists.
func (c *Controller) Ready() bool {
	return c.ready
}

// Intent returns the last applied output intent.
func (c *Controller) Intent() logic.Intent {
	return c.intent
}

// Tick runs one control cycle. A panic inside the cycle is logged, the
// outputs are forced safe and the next tick re-applies the policy.
func (c *Controller) Tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("tick: recovered: %v", r)
			if err := c.SafeAll(); err != nil {
				logging.Errorf("outputs: %v", err)
			}
			c.applied = false
			c.ch.Notify(status.FormatError("tick", fmt.Sprint(r)))
		}
	}()

	c.feedWatchdog()
	c.posts.RunPending()
	c.ch.Service(now)
	c.sense(now)
	c.telemetry(now)
	c.heartbeat(now)
}

func (c *Controller) feedWatchdog() {
	if err := c.wd.Feed(); err != nil {
		if !c.wdFailed {
			logging.Errorf("watchdog: %v", err)
			c.wdFailed = true
		}
		return
	}
	c.wdFailed = false
}

// sense reads one sample, advances the estimator and applies the output
// policy when the state or a gating input changed.
func (c *Controller) sense(now time.Time) {
	var mm int
	var got bool
	if c.test.active {
		mm, got = c.test.sample(now, c.cfg, c.sensor)
	} else {
		mm, got = c.sensor.Poll(now)
	}

	_, ok := c.est.Ingest(logic.Sample{MM: mm, Valid: got})
	if ok {
		c.lastValid = now
	}
	prev := c.est.State()
	state, changed := c.est.Update(now, ok)

	if !c.ready && now.Sub(c.start) >= time.Duration(c.cfg.BootGraceS)*time.Second {
		if _, has := c.est.Percent(); has {
			c.ready = true
			logging.Infof("sense: ready")
		}
	}

	if changed {
		pct := c.percent()
		if pct != nil {
			logging.Infof("sense: state %s -> %s (pct %.1f)", prev, state, *pct)
		} else {
			logging.Infof("sense: state %s -> %s", prev, state)
		}
		c.ch.NotifyPriority(status.FormatState(state, pct))
	}

	c.applyOutputs()

	if !ok && now.Sub(c.lastValid) > c.est.Params().Timeout &&
		(c.lastDiag.IsZero() || now.Sub(c.lastDiag) >= TimeoutReportInterval) {
		c.lastDiag = now
		logging.Warnf("sense: no valid reading for %v", now.Sub(c.lastValid).Truncate(time.Millisecond))
		c.ch.Notify(status.FormatError("sense", "timeout"))
	}
}

func (c *Controller) sensorValid() bool {
	if c.test.active && !c.test.pipeline {
		return true
	}
	return c.sensor.Valid()
}

func (c *Controller) policyInput() logic.PolicyInput {
	return logic.PolicyInput{
		State:            c.est.State(),
		SensorValid:      c.sensorValid(),
		Ready:            c.ready,
		TestActive:       c.test.active,
		TestAllowOutputs: c.test.allowOutputs,
		AllowPumpAtLow:   c.cfg.AllowPumpAtLow,
	}
}

// applyOutputs evaluates the policy and drives the interlocks when any
// policy input differs from the last applied one.
func (c *Controller) applyOutputs() {
	in := c.policyInput()
	if c.applied && in == c.lastInput {
		return
	}
	intent := logic.Evaluate(in)
	master, pump, heater := intent.Levels()

	var failed bool
	for _, w := range []struct {
		line  gpio.Line
		level int
	}{{gpio.Master, master}, {gpio.Pump, pump}, {gpio.Heater, heater}} {
		if err := c.out.Write(w.line, w.level); err != nil {
			logging.Errorf("outputs: %v", err)
			failed = true
		}
	}
	if intent != c.intent || !c.applied {
		logging.Infof("outputs: master=%d pump=%d heater=%d (state %s ready=%t test=%t)",
			master, pump, heater, in.State, in.Ready, in.TestActive)
	}
	c.intent = intent
	c.lastInput = in
	c.applied = !failed
}

// SafeAll drives every interlock to the safe level.
func (c *Controller) SafeAll() error {
	var errs []error
	for _, l := range gpio.Interlocks {
		if err := c.out.Write(l, gpio.Safe); err != nil {
			errs = append(errs, err)
		}
	}
	c.intent = logic.AllSafe
	c.applied = false
	if len(errs) > 0 {
		return fmt.Errorf("force safe: %v", errs)
	}
	return nil
}

// telemetry pushes a snapshot about once per second. Plain test mode
// sends its own payload instead.
func (c *Controller) telemetry(now time.Time) {
	c.ticks++
	if c.ticks < c.cfg.SampleHz {
		return
	}
	c.ticks = 0

	snap := c.Snapshot(now)
	if c.test.active && !c.test.pipeline {
		c.ch.Notify(status.FormatTest(snap, ""))
		return
	}
	c.ch.Notify(status.FormatStatus(snap))
}

// heartbeat drives the status LED from the state-dependent pattern.
func (c *Controller) heartbeat(now time.Time) {
	pattern := logic.BlinkPattern(c.est.State(), c.ready)
	from, to := c.lastBeat.Sub(c.start), now.Sub(c.start)
	c.lastBeat = now

	level := 0
	if logic.LEDBetween(pattern, from, to) {
		level = 1
	}
	if level == c.led {
		return
	}
	if err := c.out.Write(gpio.LED, level); err != nil {
		logging.Warnf("heartbeat: %v", err)
		return
	}
	c.led = level
}

func (c *Controller) percent() *float64 {
	return status.Round1(c.est.Percent())
}

// Snapshot returns a point-in-time view for telemetry and INFO?.
func (c *Controller) Snapshot(now time.Time) status.Snapshot {
	master, pump, heater := c.intent.Levels()
	snap := status.Snapshot{
		State:       c.est.State(),
		Percent:     c.percent(),
		EMA:         status.Round1(c.est.EMA()),
		SensorValid: c.sensorValid(),
		Mode:        c.sensor.Mode().String(),
		Ready:       c.ready,
		Outputs:     status.Outputs{Master: master, Pump: pump, Heater: heater},
		Test:        c.test.status(c.cfg),
		CalFullMM:   c.cfg.CalFullMM,
		CalEmptyMM:  c.cfg.CalEmptyMM,
		StartTime:   c.start,
		Now:         now,
	}
	if min, max, ok := c.est.Observed(); ok {
		snap.ObsMin = status.Round1(min, true)
		snap.ObsMax = status.Round1(max, true)
	}
	if t, ok := c.ch.(interface {
		Connections() int
		Backlog() int
	}); ok {
		snap.Connections = t.Connections()
		snap.Backlog = t.Backlog()
	}
	return snap
}

// setConfig replaces the configuration and pushes it into the estimator.
func (c *Controller) setConfig(cfg config.Config) {
	c.cfg = cfg
	lvl, _ := logging.ParseLevel(cfg.LogLevel)
	logging.SetLevel(lvl)
	c.est.SetParams(paramsFrom(cfg))
	c.applied = false
}

type nopChannel struct{}

func (nopChannel) Notify([]byte)         {}
func (nopChannel) NotifyPriority([]byte) {}
func (nopChannel) ClearBacklog()         {}
func (nopChannel) Service(time.Time)     {}
