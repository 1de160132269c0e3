// Package serial carries the snapshot stream over a serial device.
package serial

import (
	"io"
)

// Port is a serial connection. Tests substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unsent output and unread input.
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	Baud int

	// ReadTimeout in milliseconds; 0 blocks.
	ReadTimeout int
}

// DefaultConfig returns the settings used for the snapshot stream.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
