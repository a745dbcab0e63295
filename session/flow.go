// File: session/flow.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Flow-control policy. Inbound: an optional hard cap on buffered-unread
// bytes, enforced by the dispatcher on every data event — breach tears
// the session down rather than let memory grow behind a slow consumer.
// Outbound: warning events carry the unsent backlog size; the default
// policy throttles reports to once per WarningThreshold of growth.

package session

import (
	"log"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
)

// WarningThreshold is the minimum outbound-backlog growth between two
// reports from the default warning policy.
const WarningThreshold = 64 * 1024

// SetLimit caps the session's buffered-but-unread byte count. A data
// event pushing past the limit closes the connection unconditionally.
// n <= 0 removes the cap.
func (m *Manager) SetLimit(id api.ConnID, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil {
		return api.ErrUnknownSession
	}
	s.limit = n
	return nil
}

// OnWarning installs a custom outbound-backlog callback for the session,
// replacing the default throttled log report. fn runs on the dispatch
// goroutine. A nil fn restores the default policy.
func (m *Manager) OnWarning(id api.ConnID, fn WarningFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil {
		return api.ErrUnknownSession
	}
	s.onWarning = fn
	return nil
}

// onWarning routes a backlog report to the session's custom callback or
// the default policy. The default reports only when the backlog grew by
// at least WarningThreshold since the previous event, but the baseline is
// updated on every event regardless; a slow creep below the threshold is
// deliberately never reported.
func (m *Manager) onWarning(ev api.Event) func() {
	s := m.sessions[ev.ID]
	if s == nil {
		m.drop(ev)
		return nil
	}
	if s.onWarning != nil {
		cb := s.onWarning
		return func() { cb(ev.ID, ev.Size) }
	}
	report := ev.Size >= s.lastWarning+WarningThreshold
	s.lastWarning = ev.Size
	if report {
		log.Printf("[session] %d KiB unsent on %d", ev.Size/1024, ev.ID)
		m.metrics.Inc(control.MetricWarningsRaised)
	}
	return nil
}
