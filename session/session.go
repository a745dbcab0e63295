// File: session/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection session record and the read-demand tagged union.

package session

import (
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/internal/concurrency"
	"github.com/momentics/hioload-sock/pool"
)

// Protocol discriminates stream and datagram sessions.
type Protocol uint8

const (
	// TCP sessions buffer inbound bytes and support read demands.
	TCP Protocol = iota
	// UDP sessions deliver datagrams synchronously and carry no buffer.
	UDP
)

// AcceptFunc handles a newly accepted connection on a listening session.
// It runs on its own goroutine and typically calls Manager.Start on the
// new id.
type AcceptFunc func(id api.ConnID, addr string)

// DatagramFunc handles one inbound datagram together with its source
// address. It runs on the dispatch goroutine; blocking here stalls event
// delivery for all sessions.
type DatagramFunc func(data []byte, addr string)

// WarningFunc overrides the default outbound-backlog warning policy for
// one session. size is the current unsent byte count.
type WarningFunc func(id api.ConnID, size int)

// demandKind tags the pending read demand.
type demandKind uint8

const (
	demandNone demandKind = iota
	demandExact
	demandAll
	demandLine
)

// readDemand is the at-most-one pending "what shape of data is wanted"
// request for a session. Exact with n == 0 is the Block probe: any data
// satisfies it without being consumed.
type readDemand struct {
	kind demandKind
	n    int
	sep  []byte
}

// satisfiedBy reports whether the accumulator contents satisfy the
// demand.
func (d readDemand) satisfiedBy(acc *pool.Accumulator) bool {
	switch d.kind {
	case demandExact:
		return acc.Len() >= d.n
	case demandAll:
		return true
	case demandLine:
		return acc.HasLine(d.sep)
	}
	return false
}

// Session tracks one connection's buffering, demand, and lock state. All
// fields are guarded by the owning Manager's mutex.
type Session struct {
	id    api.ConnID
	proto Protocol

	// acc is exclusively owned by this session; nil for UDP sessions.
	acc *pool.Accumulator

	connected  bool
	connecting bool
	connectErr string
	addr       string

	demand readDemand

	// waiter is the single rendezvous slot shared by read, connect
	// confirmation, and direct close.
	waiter concurrency.Rendezvous
	// closing is the distinct hand-off slot a closer occupies while an
	// in-progress reader drains.
	closing concurrency.Rendezvous

	accept   AcceptFunc
	datagram DatagramFunc

	onWarning   WarningFunc
	limit       int
	lastWarning int

	lock *concurrency.FIFOLock
}

// failConnecting resolves a suspended connect handshake as refused. A
// session torn down mid-handshake must wake its opener before the record
// goes away; the eventual confirmation event arrives for an unregistered
// id and is dropped.
func (s *Session) failConnecting(reason string) {
	if !s.connecting || !s.waiter.Armed() {
		return
	}
	if s.connectErr == "" {
		s.connectErr = reason
	}
	s.connected = false
	s.waiter.Wake()
}

// ID returns the connection identifier.
func (s *Session) ID() api.ConnID { return s.id }

// RemoteAddr returns the address recorded at connect confirmation.
func (s *Session) RemoteAddr() string { return s.addr }

// Connected reports the last known connectivity state.
func (s *Session) Connected() bool { return s.connected }
