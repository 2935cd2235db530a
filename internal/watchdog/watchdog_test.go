package watchdog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceFeedAndClose(t *testing.T) {
	// A regular file stands in for the character device.
	path := filepath.Join(t.TempDir(), "watchdog")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	d, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, d.Feed())
	require.NoError(t, d.Feed())
	require.NoError(t, d.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 'V'}, data)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFake(t *testing.T) {
	var f Fake
	var feeder Feeder = &f
	require.NoError(t, feeder.Feed())
	assert.Equal(t, 1, f.Feeds)

	f.FeedError = errors.New("stuck")
	assert.Error(t, feeder.Feed())
	assert.Equal(t, 1, f.Feeds)

	require.NoError(t, feeder.Close())
	assert.True(t, f.Closed)
}

func TestNop(t *testing.T) {
	var feeder Feeder = Nop{}
	assert.NoError(t, feeder.Feed())
	assert.NoError(t, feeder.Close())
}
