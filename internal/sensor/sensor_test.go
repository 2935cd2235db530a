package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorPoll(t *testing.T) {
	port := NewFakePort([]byte("120\r\n"))
	s := New(port)
	assert.False(t, s.Valid(), "sensor starts invalid")

	mm, ok := s.Poll(t0)
	require.True(t, ok)
	assert.Equal(t, 120, mm)
	assert.True(t, s.Valid())
	assert.Equal(t, ModeASCII, s.Mode())
}

func TestSensorInvalidAfterConsecutiveFailures(t *testing.T) {
	port := NewFakePort([]byte("120\r\n"), nil)
	s := New(port)

	_, ok := s.Poll(t0)
	require.True(t, ok)

	now := t0
	for i := 0; i < MaxConsecutiveFailures; i++ {
		now = now.Add(100 * time.Millisecond)
		_, ok := s.Poll(now)
		assert.False(t, ok)
		assert.True(t, s.Valid(), "failure %d should not yet invalidate", i+1)
	}

	_, ok = s.Poll(now.Add(100 * time.Millisecond))
	assert.False(t, ok)
	assert.False(t, s.Valid())

	// A good reading restores validity.
	port.Set([]byte("130\n"))
	mm, ok := s.Poll(now.Add(200 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 130, mm)
	assert.True(t, s.Valid())
}

func TestSensorPortErrorIsAbsorbed(t *testing.T) {
	port := NewFakePort([]byte("120\n"))
	port.ReadError = errors.New("uart overrun")
	s := New(port)

	for i := 0; i <= MaxConsecutiveFailures; i++ {
		_, ok := s.Poll(t0)
		assert.False(t, ok)
	}
	assert.False(t, s.Valid())
}

func TestSensorInjectUsesParser(t *testing.T) {
	s := New(NewFakePort())

	mm, ok := s.Inject(EncodeFrame(95), t0)
	require.True(t, ok)
	assert.Equal(t, 95, mm)
	assert.Equal(t, ModeBinary, s.Mode())

	_, ok = s.Inject([]byte{0xFF, 0x00}, t0)
	assert.False(t, ok)
}

func TestSensorClose(t *testing.T) {
	port := NewFakePort()
	s := New(port)
	require.NoError(t, s.Close())
	assert.True(t, port.Closed)
}
