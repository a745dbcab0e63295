// File: session/read.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Blocking read facade. Each operation registers at most one read demand
// on the session, suspends on the rendezvous slot, and drains the
// accumulator after wake. Disconnect is a value, not a panic: operations
// return whatever partial bytes remained together with ErrDisconnected.
//
// Only one outstanding demand per session is allowed. Overlapping demands
// are a caller bug and abort via ProtocolViolation; tasks sharing a
// session must serialize through Lock/Unlock.

package session

import (
	"github.com/momentics/hioload-sock/api"
)

// lookupStream fetches a registered stream session. Demanding reads on a
// datagram session is a contract violation.
func (m *Manager) lookupStream(op string, id api.ConnID) (*Session, error) {
	s := m.sessions[id]
	if s == nil {
		return nil, api.ErrUnknownSession
	}
	if s.acc == nil {
		api.Violate(op, id, "read on a datagram session")
	}
	return s, nil
}

// setDemand registers the pending demand. An occupied demand or waiter
// slot means two tasks race one session without holding its lock.
func (m *Manager) setDemand(op string, s *Session, d readDemand) {
	if s.demand.kind != demandNone || s.waiter.Armed() {
		api.Violate(op, s.id, "overlapping read demand")
	}
	s.demand = d
}

// Read returns exactly n bytes from the session. When n <= 0 it behaves
// like ReadAll: whatever is buffered, waiting once if nothing is. If the
// connection drops before the demand is satisfied, Read returns the
// remaining partial bytes together with ErrDisconnected.
func (m *Manager) Read(id api.ConnID, n int) ([]byte, error) {
	if n <= 0 {
		return m.ReadAll(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupStream("read", id)
	if err != nil {
		return nil, err
	}
	if data, ok := s.acc.Pop(n); ok {
		return data, nil
	}
	if !s.connected {
		return s.acc.ReadAll(), api.ErrDisconnected
	}
	m.setDemand("read", s, readDemand{kind: demandExact, n: n})
	m.wait(s)
	if data, ok := s.acc.Pop(n); ok {
		return data, nil
	}
	return s.acc.ReadAll(), api.ErrDisconnected
}

// ReadAll drains all currently buffered bytes. With an empty buffer on a
// live connection it suspends until the next data or close event and
// drains again; ErrDisconnected is returned only when nothing was ever
// available after disconnect.
func (m *Manager) ReadAll(id api.ConnID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupStream("readall", id)
	if err != nil {
		return nil, err
	}
	if s.acc.Len() > 0 {
		return s.acc.ReadAll(), nil
	}
	if !s.connected {
		return nil, api.ErrDisconnected
	}
	m.setDemand("readall", s, readDemand{kind: demandAll})
	m.wait(s)
	out := s.acc.ReadAll()
	if len(out) == 0 && !s.connected {
		return nil, api.ErrDisconnected
	}
	return out, nil
}

// ReadLine returns the next line, excluding the separator. A nil or
// empty separator defaults to "\n". The demand stays pending across any
// number of data events until a separator arrives; on disconnect first,
// all remaining buffered bytes come back with ErrDisconnected.
func (m *Manager) ReadLine(id api.ConnID, sep []byte) ([]byte, error) {
	if len(sep) == 0 {
		sep = []byte("\n")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupStream("readline", id)
	if err != nil {
		return nil, err
	}
	if line, ok := s.acc.ReadLine(sep); ok {
		return line, nil
	}
	if !s.connected {
		return s.acc.ReadAll(), api.ErrDisconnected
	}
	m.setDemand("readline", s, readDemand{kind: demandLine, sep: sep})
	m.wait(s)
	if line, ok := s.acc.ReadLine(sep); ok {
		return line, nil
	}
	return s.acc.ReadAll(), api.ErrDisconnected
}

// Block suspends until any data arrives or the connection drops, without
// consuming anything, and reports the post-wake connectivity. A zero-byte
// exact demand is the probe: any data event satisfies it untouched.
func (m *Manager) Block(id api.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil || !s.connected {
		return false
	}
	if s.acc == nil {
		api.Violate("block", id, "block on a datagram session")
	}
	m.setDemand("block", s, readDemand{kind: demandExact, n: 0})
	m.wait(s)
	return s.connected
}

// buffered is a test hook reporting the unread byte count.
func (m *Manager) buffered(id api.ConnID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil || s.acc == nil {
		return 0
	}
	return s.acc.Len()
}
