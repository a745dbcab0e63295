// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for the session layer. Counters are kept in a
// thread-safe map with dynamic registration so the surrounding service
// framework can scrape a snapshot without a fixed schema.

package control

import (
	"sync"
	"time"
)

// Well-known counter keys maintained by the session manager.
const (
	MetricSessionsOpened  = "sessions_opened"
	MetricSessionsClosed  = "sessions_closed"
	MetricBytesBuffered   = "bytes_buffered"
	MetricBufferOverflows = "buffer_overflows"
	MetricWarningsRaised  = "warnings_raised"
	MetricEventsDropped   = "events_dropped"
)

// MetricsRegistry holds monotonically growing counters.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]int64
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]int64),
	}
}

// Inc bumps a counter by one. A nil registry is a no-op, so callers can
// run without metrics wired.
func (mr *MetricsRegistry) Inc(key string) {
	mr.Add(key, 1)
}

// Add bumps a counter by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.metrics[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Get returns the current value of one counter.
func (mr *MetricsRegistry) Get(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.metrics[key]
}

// GetSnapshot returns a copy of all counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	if mr == nil {
		return nil
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}
