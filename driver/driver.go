// File: driver/driver.go
// Package driver implements the api.Driver facade over the native
// non-blocking socket machinery of the platform.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"github.com/momentics/hioload-sock/api"
)

// New creates the native driver for this platform.
func New(cfg *Config) (api.Driver, error) {
	return newDriver(cfg.withDefaults())
}

// Config holds parameters immutable per driver instance.
type Config struct {
	EventQueueSize int // capacity of the driver-to-dispatcher event channel
	ReadBufferSize int // per-read scratch buffer for stream sockets
	MaxEpollEvents int // events fetched per poll cycle
}

// DefaultConfig returns sane defaults for typical workloads.
func DefaultConfig() *Config {
	return &Config{
		EventQueueSize: 1024,
		ReadBufferSize: 64 * 1024,
		MaxEpollEvents: 128,
	}
}

func (c *Config) withDefaults() *Config {
	out := *DefaultConfig()
	if c == nil {
		return &out
	}
	if c.EventQueueSize > 0 {
		out.EventQueueSize = c.EventQueueSize
	}
	if c.ReadBufferSize > 0 {
		out.ReadBufferSize = c.ReadBufferSize
	}
	if c.MaxEpollEvents > 0 {
		out.MaxEpollEvents = c.MaxEpollEvents
	}
	return &out
}
