// File: session/lock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-session FIFO mutex. Independent of the read-demand slot: the lock
// serializes whole multi-step exchanges, reads serialize single drains.

package session

import (
	"github.com/momentics/hioload-sock/api"
)

// Lock acquires the session's FIFO mutex, suspending the caller behind
// earlier arrivals. Acquisition order is strictly call order.
func (m *Manager) Lock(id api.ConnID) error {
	m.mu.Lock()
	s := m.sessions[id]
	if s == nil {
		m.mu.Unlock()
		return api.ErrUnknownSession
	}
	ch := s.lock.Acquire()
	m.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return nil
}

// Unlock releases the session's FIFO mutex and wakes the next waiter in
// arrival order. Unlocking without holding is a contract violation.
func (m *Manager) Unlock(id api.ConnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil {
		return api.ErrUnknownSession
	}
	if !s.lock.Release() {
		api.Violate("unlock", id, "unlock without holding the lock")
	}
	return nil
}
