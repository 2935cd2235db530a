package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeWriterStartsSafe(t *testing.T) {
	f := NewFakeWriter()
	assert.True(t, f.AllSafe())
	assert.Equal(t, 0, f.Levels[LED])
}

func TestFakeWriterWrite(t *testing.T) {
	f := NewFakeWriter()

	require.NoError(t, f.Write(Pump, 0))
	assert.Equal(t, 0, f.Levels[Pump])
	assert.False(t, f.AllSafe())
	assert.Equal(t, 1, f.Writes[Pump])

	require.NoError(t, f.Write(Pump, 1))
	assert.True(t, f.AllSafe())
	assert.Equal(t, 2, f.Writes[Pump])
}

func TestFakeWriterError(t *testing.T) {
	f := NewFakeWriter()
	f.WriteError = errors.New("simulated error")

	err := f.Write(Master, 0)
	assert.EqualError(t, err, "simulated error")
	assert.Equal(t, Safe, f.Levels[Master])
}

func TestFakeWriterCloseDrivesSafe(t *testing.T) {
	f := NewFakeWriter()
	for _, l := range Interlocks {
		require.NoError(t, f.Write(l, 0))
	}
	require.NoError(t, f.Write(LED, 1))

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
	assert.True(t, f.AllSafe())
}

func TestLineString(t *testing.T) {
	assert.Equal(t, "master", Master.String())
	assert.Equal(t, "pump", Pump.String())
	assert.Equal(t, "heater", Heater.String())
	assert.Equal(t, "led", LED.String())
	assert.Equal(t, "line(9)", Line(9).String())
}

func TestPinsOffset(t *testing.T) {
	p := Pins{Master: PinMaster, Pump: PinPump, Heater: -1, LED: PinLED}
	assert.Equal(t, 15, p.Offset(Master))
	assert.Equal(t, 14, p.Offset(Pump))
	assert.Equal(t, -1, p.Offset(Heater))
	assert.Equal(t, 2, p.Offset(LED))
	assert.Equal(t, -1, p.Offset(Line(9)))
}
