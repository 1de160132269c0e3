// Package config loads the emulator's JSON configuration.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pioemu/core"
)

// Duration is a time.Duration that reads and writes as a Go duration
// string such as "1ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Config describes one emulator process.
type Config struct {
	PIOIndex int `json:"pio_index"`

	// ClockPeriod is the wall time per master clock cycle. Zero runs the
	// clock as fast as possible.
	ClockPeriod Duration `json:"clock_period"`

	// SnapshotCycles is the number of clock cycles between streamed
	// register snapshots.
	SnapshotCycles uint64 `json:"snapshot_cycles"`

	// SerialDevice receives the snapshot stream; empty disables it.
	SerialDevice string `json:"serial_device"`
	Baud         int    `json:"baud"`

	// Script is a Lua file run against the SDK at start-up.
	Script string `json:"script"`

	LogLevel string `json:"log_level"`
	Trace    bool   `json:"trace"`

	// clockPeriodSet records whether clock_period appeared in the input,
	// so that an explicit "0s" survives applyDefaults.
	clockPeriodSet bool
}

// LoadConfig parses JSON configuration and fills in defaults.
func LoadConfig(jsonData []byte) (*Config, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	var config Config
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	_, config.clockPeriodSet = raw["clock_period"]

	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return LoadConfig(data)
}

// applyDefaults fills in missing configuration values.
func applyDefaults(config *Config) {
	if config.ClockPeriod == 0 && !config.clockPeriodSet {
		config.ClockPeriod = Duration(time.Millisecond)
	}
	if config.SnapshotCycles == 0 {
		config.SnapshotCycles = 1000
	}
	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// Validate checks ranges that defaults cannot repair.
func (c *Config) Validate() error {
	if err := core.CheckRange("pio_index", c.PIOIndex, 0, 1); err != nil {
		return err
	}
	if c.ClockPeriod < 0 {
		return errors.Errorf("clock_period %v is negative", time.Duration(c.ClockPeriod))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log_level string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q", s)
}
