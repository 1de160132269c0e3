package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioemu/core"
)

func TestDefaults(t *testing.T) {
	config, err := LoadConfig([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
	assert.Equal(t, Duration(time.Millisecond), config.ClockPeriod)
	assert.Equal(t, uint64(1000), config.SnapshotCycles)
	assert.Equal(t, 115200, config.Baud)
	assert.Equal(t, "info", config.LogLevel)
	assert.Empty(t, config.SerialDevice)
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig([]byte(`{
		"pio_index": 1,
		"clock_period": "250us",
		"snapshot_cycles": 64,
		"serial_device": "/dev/ttyUSB0",
		"script": "blink.lua",
		"log_level": "debug",
		"trace": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, config.PIOIndex)
	assert.Equal(t, Duration(250*time.Microsecond), config.ClockPeriod)
	assert.Equal(t, uint64(64), config.SnapshotCycles)
	assert.Equal(t, "/dev/ttyUSB0", config.SerialDevice)
	assert.Equal(t, 115200, config.Baud)
	assert.Equal(t, "blink.lua", config.Script)
	assert.True(t, config.Trace)
}

func TestExplicitZeroClockPeriod(t *testing.T) {
	config, err := LoadConfig([]byte(`{"clock_period": "0s"}`))
	require.NoError(t, err)
	assert.Zero(t, config.ClockPeriod)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]byte(`{"pio_index": 2}`))
	assert.ErrorIs(t, err, core.ErrOutOfRange)

	_, err = LoadConfig([]byte(`{"clock_period": "soon"}`))
	assert.Error(t, err)

	_, err = LoadConfig([]byte(`{"log_level": "loud"}`))
	assert.Error(t, err)

	_, err = LoadConfig([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pioemu.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"baud": 9600}`), 0o644))
	config, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9600, config.Baud)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
