package logic

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const tick = 125 * time.Millisecond // 8 Hz

func f(v float64) *float64 { return &v }

func testParams() Params {
	return Params{
		MinMM:      30,
		MaxMM:      220,
		Window:     5,
		Alpha:      0.25,
		CalFullMM:  f(50),
		CalEmptyMM: f(190),
		AutoLearn:  true,
		Thresholds: Thresholds{Low: 30, Bottom: 10, Hysteresis: 4},
		Debounce:   300 * time.Millisecond,
		Timeout:    1200 * time.Millisecond,
	}
}

// feed ingests mm every tick for n ticks starting at start and returns the
// time of the next tick.
func feed(e *Estimator, mm, n int, start time.Time) time.Time {
	now := start
	for i := 0; i < n; i++ {
		_, ok := e.Ingest(Sample{MM: mm, Valid: true})
		e.Update(now, ok)
		now = now.Add(tick)
	}
	return now
}

// mmForPercent inverts the calibrated mapping of testParams.
func mmForPercent(p float64) int {
	return int(190 - p/100*140 + 0.5)
}

func TestNewEstimatorStartsInFault(t *testing.T) {
	e := NewEstimator(testParams(), t0)
	assert.Equal(t, StateFault, e.State())
	_, ok := e.Percent()
	assert.False(t, ok)
	_, ok = e.EMA()
	assert.False(t, ok)
}

func TestIngestRejectsImplausible(t *testing.T) {
	e := NewEstimator(testParams(), t0)

	tests := []Sample{
		{Valid: false},
		{MM: 29, Valid: true},
		{MM: 221, Valid: true},
	}
	for _, s := range tests {
		_, ok := e.Ingest(s)
		assert.False(t, ok, "sample %+v", s)
	}
	assert.Equal(t, 0, len(e.window))

	// Bounds are inclusive.
	_, ok := e.Ingest(Sample{MM: 30, Valid: true})
	assert.True(t, ok)
	_, ok = e.Ingest(Sample{MM: 220, Valid: true})
	assert.True(t, ok)
}

func TestIngestFirstSampleSeedsEMA(t *testing.T) {
	e := NewEstimator(testParams(), t0)
	r, ok := e.Ingest(Sample{MM: 120, Valid: true})
	require.True(t, ok)
	assert.Equal(t, 120.0, r.EMA)
	assert.InDelta(t, 50.0, r.Percent, 1e-9)
}

func TestIngestMedianSuppressesGlitch(t *testing.T) {
	p := testParams()
	p.Alpha = 1 // EMA follows the median exactly
	e := NewEstimator(p, t0)

	for _, mm := range []int{100, 100, 100} {
		e.Ingest(Sample{MM: mm, Valid: true})
	}
	r, ok := e.Ingest(Sample{MM: 200, Valid: true})
	require.True(t, ok)
	assert.Equal(t, 100.0, r.EMA, "a single outlier must not reach the EMA")
}

func TestIngestEvenWindowAveragesMiddle(t *testing.T) {
	p := testParams()
	p.Alpha = 1
	p.Window = 4
	e := NewEstimator(p, t0)

	var r Reading
	for _, mm := range []int{100, 110, 120, 130} {
		r, _ = e.Ingest(Sample{MM: mm, Valid: true})
	}
	assert.Equal(t, 115.0, r.EMA)
}

func TestIngestEMA(t *testing.T) {
	p := testParams()
	p.Window = 1 // floored to 3
	e := NewEstimator(p, t0)

	e.Ingest(Sample{MM: 100, Valid: true})
	r, _ := e.Ingest(Sample{MM: 100, Valid: true})
	assert.Equal(t, 100.0, r.EMA)

	// window [100 100 140] -> median 100
	r, _ = e.Ingest(Sample{MM: 140, Valid: true})
	assert.Equal(t, 100.0, r.EMA)

	// window [100 140 140] -> median 140 -> 0.25*140 + 0.75*100
	r, _ = e.Ingest(Sample{MM: 140, Valid: true})
	assert.InDelta(t, 110.0, r.EMA, 1e-9)
}

func TestIngestWindowBoundAndPercentClamp(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, window := range []int{0, 1, 3, 5, 9} {
		p := testParams()
		p.Window = window
		e := NewEstimator(p, t0)

		limit := window
		if limit < 3 {
			limit = 3
		}
		for i := 0; i < 500; i++ {
			mm := p.MinMM + rng.Intn(p.MaxMM-p.MinMM+1)
			r, ok := e.Ingest(Sample{MM: mm, Valid: true})
			require.True(t, ok)
			assert.LessOrEqual(t, len(e.window), limit)
			assert.GreaterOrEqual(t, r.Percent, 0.0)
			assert.LessOrEqual(t, r.Percent, 100.0)
		}
	}
}

func TestAnchorsFallBack(t *testing.T) {
	t.Run("plausibility bounds without calibration or auto-learn", func(t *testing.T) {
		p := testParams()
		p.CalFullMM, p.CalEmptyMM, p.AutoLearn = nil, nil, false
		e := NewEstimator(p, t0)
		r, _ := e.Ingest(Sample{MM: 125, Valid: true})
		assert.InDelta(t, 100*(220.0-125)/(220-30), r.Percent, 1e-9)
	})

	t.Run("observed anchors with auto-learn", func(t *testing.T) {
		p := testParams()
		p.CalFullMM, p.CalEmptyMM = nil, nil
		p.Alpha = 1
		e := NewEstimator(p, t0)
		for _, mm := range []int{60, 60, 60, 60, 60, 160, 160, 160, 160, 160} {
			e.Ingest(Sample{MM: mm, Valid: true})
		}
		min, max, ok := e.Observed()
		require.True(t, ok)
		assert.Equal(t, 60.0, min)
		assert.Equal(t, 160.0, max)
		pct, _ := e.Percent()
		assert.Equal(t, 0.0, pct)
	})

	t.Run("span floor", func(t *testing.T) {
		p := testParams()
		p.CalFullMM, p.CalEmptyMM = f(100), f(101)
		e := NewEstimator(p, t0)
		r, _ := e.Ingest(Sample{MM: 99, Valid: true})
		assert.InDelta(t, 40.0, r.Percent, 1e-9) // 100*(101-99)/5
	})
}

func TestNextState(t *testing.T) {
	th := Thresholds{Low: 30, Bottom: 10, Hysteresis: 4}

	tests := []struct {
		cur  State
		p    float64
		want State
	}{
		{StateFault, 10, StateBottom},
		{StateFault, 9, StateBottom},
		{StateFault, 30, StateLow},
		{StateFault, 11, StateLow},
		{StateFault, 31, StateOK},

		{StateOK, 27, StateOK},
		{StateOK, 26, StateLow},
		{StateOK, 0, StateLow},

		{StateLow, 7, StateLow},
		{StateLow, 6, StateBottom},
		{StateLow, 33, StateLow},
		{StateLow, 34, StateOK},

		{StateBottom, 17, StateBottom},
		{StateBottom, 18, StateLow},
		{StateBottom, 26, StateLow},
		{StateBottom, 27, StateOK},
	}

	for _, tt := range tests {
		got := NextState(tt.cur, tt.p, th)
		assert.Equal(t, tt.want, got, "NextState(%s, %v)", tt.cur, tt.p)
	}
}

func TestUpdateFaultToBottomAfterDebounce(t *testing.T) {
	p := testParams()
	e := NewEstimator(p, t0)
	mm := mmForPercent(p.Thresholds.Bottom - 1)

	now := feed(e, mm, 1, t0)
	require.Equal(t, StateFault, e.State(), "must not commit before debounce")

	feed(e, mm, int(p.Debounce/tick)+2, now)
	assert.Equal(t, StateBottom, e.State())
}

func TestUpdateLowToOK(t *testing.T) {
	p := testParams()
	e := NewEstimator(p, t0)

	now := feed(e, mmForPercent(20), 40, t0)
	require.Equal(t, StateLow, e.State())

	th := p.Thresholds
	feed(e, mmForPercent(th.Low+th.Hysteresis+1), 60, now)
	assert.Equal(t, StateOK, e.State())
}

func TestUpdateNoChatterInsideHysteresisBand(t *testing.T) {
	p := testParams()
	p.Alpha = 1
	e := NewEstimator(p, t0)

	now := feed(e, mmForPercent(50), 20, t0)
	require.Equal(t, StateOK, e.State())

	// Oscillate between low-h+1 and low+h-1 around the LOW threshold.
	a, b := mmForPercent(27), mmForPercent(33)
	for i := 0; i < 200; i++ {
		mm := a
		if i%2 == 0 {
			mm = b
		}
		_, ok := e.Ingest(Sample{MM: mm, Valid: true})
		_, changed := e.Update(now, ok)
		assert.False(t, changed)
		now = now.Add(tick)
	}
	assert.Equal(t, StateOK, e.State())
}

func TestUpdateShortSpikeIsDebounced(t *testing.T) {
	p := testParams()
	p.Alpha = 1
	p.Window = 3
	e := NewEstimator(p, t0)

	now := feed(e, 50, 10, t0)
	require.Equal(t, StateOK, e.State())

	now = feed(e, 190, 2, now)
	feed(e, 50, 5, now)
	assert.Equal(t, StateOK, e.State())
}

func TestUpdateTimeoutForcesFault(t *testing.T) {
	p := testParams()
	e := NewEstimator(p, t0)

	now := feed(e, 50, 20, t0)
	require.Equal(t, StateOK, e.State())
	last := now.Add(-tick)

	state, changed := e.Update(last.Add(p.Timeout), false)
	assert.False(t, changed, "exactly at the timeout nothing happens")
	assert.Equal(t, StateOK, state)

	state, changed = e.Update(last.Add(p.Timeout+time.Millisecond), false)
	assert.True(t, changed)
	assert.Equal(t, StateFault, state)

	// Recovery re-enters through the FAULT entry rules.
	feed(e, 50, 10, last.Add(2*p.Timeout))
	assert.Equal(t, StateOK, e.State())
}

func TestUpdateNeverReportingSensorFaultsAfterTimeout(t *testing.T) {
	p := testParams()
	e := NewEstimator(p, t0)
	_, changed := e.Update(t0.Add(p.Timeout+time.Millisecond), false)
	assert.False(t, changed, "already in FAULT")
	assert.Equal(t, StateFault, e.State())
}

func TestReset(t *testing.T) {
	e := NewEstimator(testParams(), t0)
	feed(e, 100, 10, t0)

	require.Equal(t, StateOK, e.State())

	e.Reset(t0.Add(time.Minute))
	assert.Equal(t, StateFault, e.State())
	assert.Equal(t, 0, len(e.window))
	_, ok := e.EMA()
	assert.False(t, ok)
	_, ok = e.Percent()
	assert.False(t, ok)
	_, _, ok = e.Observed()
	assert.False(t, ok)
}

func TestEndToEndFullThenEmpty(t *testing.T) {
	p := testParams()
	e := NewEstimator(p, t0)

	now := feed(e, 50, 80, t0)
	pct, _ := e.Percent()
	assert.InDelta(t, 100.0, pct, 0.01)
	assert.Equal(t, StateOK, e.State())

	feed(e, 190, 120, now)
	pct, _ = e.Percent()
	assert.InDelta(t, 0.0, pct, 0.01)
	assert.Equal(t, StateBottom, e.State())
}
