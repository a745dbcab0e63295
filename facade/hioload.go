// File: facade/hioload.go
// Unified facade layer for hioload-sock library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the HioloadSock struct, which aggregates the core
// components of the hioload-sock library behind a single facade. It wires
// the native event driver, the session manager, and the metrics registry
// from immutable configuration, and owns the dispatcher goroutine for the
// lifetime of a run. Callers interact with sessions through the Manager
// accessor; the facade only manages assembly and lifecycle.

package facade

import (
	"context"
	"log"
	"sync"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/driver"
	"github.com/momentics/hioload-sock/session"
)

// Config holds parameters immutable per run.
type Config struct {
	EventQueueSize int // capacity of the driver-to-dispatcher event channel
	ReadBufferSize int // per-read scratch buffer for stream sockets
	MaxEpollEvents int // events fetched per poll cycle
	EnableMetrics  bool
}

// DefaultConfig returns default configuration values.
// These sane defaults support typical use cases without extensive tuning.
func DefaultConfig() *Config {
	return &Config{
		EventQueueSize: 1024,
		ReadBufferSize: 64 * 1024,
		MaxEpollEvents: 128,
		EnableMetrics:  true,
	}
}

// HioloadSock is the aggregate entry point of the library.
type HioloadSock struct {
	cfg     *Config
	drv     api.Driver
	mgr     *session.Manager
	metrics *control.MetricsRegistry

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds the facade on the native platform driver.
func New(cfg *Config) (*HioloadSock, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	drv, err := driver.New(&driver.Config{
		EventQueueSize: cfg.EventQueueSize,
		ReadBufferSize: cfg.ReadBufferSize,
		MaxEpollEvents: cfg.MaxEpollEvents,
	})
	if err != nil {
		return nil, err
	}
	return NewWithDriver(cfg, drv), nil
}

// NewWithDriver builds the facade over a caller-supplied driver. Used by
// tests and by embedders bringing their own event source.
func NewWithDriver(cfg *Config, drv api.Driver) *HioloadSock {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var metrics *control.MetricsRegistry
	if cfg.EnableMetrics {
		metrics = control.NewMetricsRegistry()
	}
	return &HioloadSock{
		cfg:     cfg,
		drv:     drv,
		mgr:     session.NewManager(drv, metrics),
		metrics: metrics,
	}
}

// Start launches the dispatcher goroutine. Idempotent per run.
func (h *HioloadSock) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		h.mgr.Run(ctx)
	}()
	h.started = true
	log.Printf("[facade] started")
	return nil
}

// Shutdown tears down every session, stops the driver and waits for the
// dispatcher to drain. Safe to call more than once.
func (h *HioloadSock) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	h.mgr.Shutdown()
	err := h.drv.Stop()
	<-h.done
	h.cancel()
	h.started = false
	log.Printf("[facade] shutdown complete")
	return err
}

// Manager exposes the session layer.
func (h *HioloadSock) Manager() *session.Manager { return h.mgr }

// Driver exposes the underlying event driver.
func (h *HioloadSock) Driver() api.Driver { return h.drv }

// Metrics returns the registry, or nil when metrics are disabled.
func (h *HioloadSock) Metrics() *control.MetricsRegistry { return h.metrics }
