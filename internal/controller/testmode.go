package controller

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sweeney/watertank-sensor/internal/config"
	"github.com/sweeney/watertank-sensor/internal/logging"
	"github.com/sweeney/watertank-sensor/internal/sensor"
	"github.com/sweeney/watertank-sensor/internal/status"
)

// testGen produces synthetic levels. Plain mode hands the level straight
// to the estimator; pipeline mode encodes it, applies wire faults and
// feeds the bytes through the sensor's parser.
type testGen struct {
	active       bool
	pipeline     bool
	allowOutputs bool
	start        time.Time

	rng    *rand.Rand
	lastMM int
	hasMM  bool
}

// level returns the sawtooth level at now: full to empty over the first
// half of the period, back to full over the second.
func (g *testGen) level(now time.Time, cfg config.Config) int {
	full, empty := float64(cfg.MinMM), float64(cfg.MaxMM)
	if cfg.CalFullMM != nil {
		full = *cfg.CalFullMM
	}
	if cfg.CalEmptyMM != nil {
		empty = *cfg.CalEmptyMM
	}

	period := time.Duration(cfg.TestPeriodS) * time.Second
	if period <= 0 {
		period = time.Duration(config.MinTestPeriodS) * time.Second
	}
	t := now.Sub(g.start)
	if t < 0 {
		t = 0
	}
	ratio := float64(t%period) / float64(period)

	var mm float64
	if ratio < 0.5 {
		mm = full + (ratio/0.5)*(empty-full)
	} else {
		mm = empty + ((ratio-0.5)/0.5)*(full-empty)
	}
	return int(mm)
}

// sample produces the reading for one tick.
func (g *testGen) sample(now time.Time, cfg config.Config, s *sensor.Sensor) (int, bool) {
	mm := g.level(now, cfg)
	g.lastMM, g.hasMM = mm, true
	if !g.pipeline {
		return mm, true
	}
	return g.inject(now, cfg, s, mm)
}

// inject applies the configured faults to mm and runs the result through
// the sensor's parse path.
func (g *testGen) inject(now time.Time, cfg config.Config, s *sensor.Sensor, mm int) (int, bool) {
	if g.chance(cfg.TestDropoutPct) {
		return s.Inject(nil, now)
	}

	v := float64(mm)
	if cfg.TestNoiseMM > 0 {
		v += g.rng.NormFloat64() * cfg.TestNoiseMM
	}
	if g.chance(cfg.TestOutlierPct) {
		v = float64(cfg.MinMM + g.rng.Intn(cfg.MaxMM-cfg.MinMM+1))
	}
	mm = clampMM(int(math.Round(v)))

	var raw []byte
	if cfg.TestBinary {
		raw = sensor.EncodeFrame(mm)
	} else {
		raw = []byte(fmt.Sprintf("%d\r\n", mm))
	}

	if g.chance(cfg.TestCorruptPct) {
		i := g.rng.Intn(len(raw))
		raw[i] ^= byte(1 + g.rng.Intn(255))
	}
	if cfg.TestChunkJitter > 0 {
		n := g.rng.Intn(cfg.TestChunkJitter + 1)
		junk := make([]byte, n)
		g.rng.Read(junk)
		raw = append(junk, raw...)
	}

	if len(raw) > 1 && g.chance(cfg.TestSplitPct) {
		cut := 1 + g.rng.Intn(len(raw)-1)
		got, ok := s.Inject(raw[:cut], now)
		if got2, ok2 := s.Inject(raw[cut:], now); ok2 {
			return got2, true
		}
		return got, ok
	}
	return s.Inject(raw, now)
}

// chance returns true with probability pct percent.
func (g *testGen) chance(pct float64) bool {
	return pct > 0 && g.rng.Float64()*100 < pct
}

func (g *testGen) status(cfg config.Config) status.Test {
	t := status.Test{
		Active:       g.active,
		Pipeline:     g.pipeline,
		AllowOutputs: g.allowOutputs,
		PeriodS:      cfg.TestPeriodS,
	}
	if g.active && g.hasMM {
		mm := g.lastMM
		t.MM = &mm
	}
	return t
}

// clampMM keeps a synthetic level encodable by both wire formats.
func clampMM(mm int) int {
	if mm < 1 {
		return 1
	}
	if mm > 9999 {
		return 9999
	}
	return mm
}

// startTest switches the sensing source to the generator. The filter
// restarts so stale real readings do not leak into the test, and the
// outputs are re-evaluated on the same tick.
func (c *Controller) startTest(now time.Time, pipeline, allowOutputs bool) {
	c.test.active = true
	c.test.pipeline = pipeline
	c.test.allowOutputs = allowOutputs
	c.test.start = now
	c.test.hasMM = false

	c.est.Reset(now)
	c.lastValid = now
	c.ch.ClearBacklog()
	logging.Infof("test: started (pipe=%t out=%t period=%ds)", pipeline, allowOutputs, c.cfg.TestPeriodS)
	c.ch.Notify(status.FormatTest(c.Snapshot(now), "started"))
	c.applyOutputs()
}

// stopTest returns to the real sensor and forces an immediate safety
// re-evaluation. The estimator restarts in FAULT until real readings
// commit a state again.
func (c *Controller) stopTest(now time.Time) {
	if !c.test.active {
		c.ch.Notify(status.FormatTest(c.Snapshot(now), "stopped"))
		return
	}
	c.test.active = false
	c.test.pipeline = false
	c.test.allowOutputs = false
	c.test.hasMM = false

	c.est.Reset(now)
	c.lastValid = now
	logging.Infof("test: stopped")
	c.applied = false
	c.applyOutputs()
	c.ch.Notify(status.FormatTest(c.Snapshot(now), "stopped"))
}
