// File: session/manager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Manager owns the session registry and the lifecycle operations: open,
// bind, start, listen, close, abandon. It is the only component allowed
// to create or destroy Session records.

package session

import (
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/internal/concurrency"
	"github.com/momentics/hioload-sock/pool"
)

// Manager is the socket session layer. All exported methods are safe for
// concurrent use; blocking methods suspend the calling goroutine until
// the dispatcher resolves them.
type Manager struct {
	mu       sync.Mutex
	drv      api.Driver
	pool     *pool.AccumulatorPool
	sessions map[api.ConnID]*Session
	metrics  *control.MetricsRegistry
}

// NewManager creates a session manager over the given driver. metrics may
// be nil to run without counters.
func NewManager(drv api.Driver, metrics *control.MetricsRegistry) *Manager {
	return &Manager{
		drv:      drv,
		pool:     pool.NewAccumulatorPool(),
		sessions: make(map[api.ConnID]*Session),
		metrics:  metrics,
	}
}

// Driver returns the underlying driver facade, for raw sends composed by
// higher layers.
func (m *Manager) Driver() api.Driver { return m.drv }

// register creates and registers a session record. The manager mutex must
// be held. Reusing a live id is a contract violation.
func (m *Manager) register(id api.ConnID, proto Protocol) *Session {
	if _, live := m.sessions[id]; live {
		api.Violate("register", id, "id is already registered")
	}
	s := &Session{
		id:    id,
		proto: proto,
		lock:  concurrency.NewFIFOLock(),
	}
	if proto == TCP {
		s.acc = m.pool.Get()
	}
	m.sessions[id] = s
	m.metrics.Inc(control.MetricSessionsOpened)
	return s
}

// destroy releases the session's accumulator and removes it from the
// registry. The manager mutex must be held. A non-empty lock queue at
// teardown is a contract violation: some task still holds or awaits the
// session mutex.
func (m *Manager) destroy(s *Session) {
	if _, live := m.sessions[s.id]; !live {
		return
	}
	if s.lock.Len() != 0 {
		api.Violate("close", s.id, "lock queue is not empty at teardown")
	}
	s.failConnecting("closed before confirmation")
	if s.acc != nil {
		m.pool.Put(s.acc)
		s.acc = nil
	}
	delete(m.sessions, s.id)
	m.metrics.Inc(control.MetricSessionsClosed)
}

// wait suspends the caller on the session's rendezvous slot until the
// dispatcher wakes it. The manager mutex must be held on entry and is
// held again on return. A pending closing hand-off is resolved before
// returning, so a closer never tears the session down under a reader.
func (m *Manager) wait(s *Session) {
	ch := s.waiter.Arm()
	m.mu.Unlock()
	<-ch
	m.mu.Lock()
	s.closing.Wake()
}

// Open establishes a TCP connection to addr:port and registers a session
// for it. It suspends until the driver confirms or refuses the connect.
// Refusal is returned as a value carrying the driver-supplied message.
func (m *Manager) Open(addr string, port int) (api.ConnID, error) {
	m.mu.Lock()
	id, err := m.drv.Connect(addr, port)
	if err != nil {
		m.mu.Unlock()
		return 0, errors.Wrapf(err, "connect %s:%d", addr, port)
	}
	s := m.register(id, TCP)
	s.connecting = true
	m.wait(s)
	defer m.mu.Unlock()
	if s.connected {
		s.connecting = false
		return id, nil
	}
	msg := s.connectErr
	m.destroy(s)
	if msg == "" {
		msg = "closed before confirmation"
	}
	return 0, errors.Wrapf(api.ErrConnectFailed, "%s:%d: %s", addr, port, msg)
}

// Bind attaches an externally created descriptor to a new session and
// performs the connect-confirmation handshake.
func (m *Manager) Bind(fd uintptr) (api.ConnID, error) {
	m.mu.Lock()
	id, err := m.drv.Bind(fd)
	if err != nil {
		m.mu.Unlock()
		return 0, errors.Wrapf(err, "bind fd %d", fd)
	}
	s := m.register(id, TCP)
	s.connecting = true
	m.wait(s)
	defer m.mu.Unlock()
	if s.connected {
		s.connecting = false
		return id, nil
	}
	msg := s.connectErr
	m.destroy(s)
	return 0, errors.Wrapf(api.ErrConnectFailed, "bind fd %d: %s", fd, msg)
}

// Start registers a session for an already-created descriptor (freshly
// accepted, a listener, or one abandoned by another manager), arms it,
// and suspends until the driver confirms. accept is invoked for each
// connection accepted on a listening descriptor; pass nil for plain
// connections.
func (m *Manager) Start(id api.ConnID, accept AcceptFunc) error {
	m.mu.Lock()
	s := m.register(id, TCP)
	s.accept = accept
	s.connecting = true
	if err := m.drv.Start(id); err != nil {
		m.destroy(s)
		m.mu.Unlock()
		return errors.Wrapf(err, "start %d", id)
	}
	m.wait(s)
	defer m.mu.Unlock()
	if s.connected {
		s.connecting = false
		return nil
	}
	msg := s.connectErr
	m.destroy(s)
	return errors.Wrapf(api.ErrConnectFailed, "start %d: %s", id, msg)
}

// Listen creates a listening descriptor. No session is registered; the
// caller must Start the returned id with an accept callback before
// connections are delivered.
func (m *Manager) Listen(host string, port, backlog int) (api.ConnID, error) {
	id, err := m.drv.Listen(host, port, backlog)
	if err != nil {
		return 0, errors.Wrapf(err, "listen %s:%d", host, port)
	}
	return id, nil
}

// Close tears a session down. It is idempotent: closing an unregistered
// id is a no-op. When another goroutine is suspended mid-read, the closer
// parks on the hand-off slot until the reader's suspend call returns, so
// the accumulator is never released under an active reader.
func (m *Manager) Close(id api.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil {
		return
	}
	if s.connected {
		m.drv.Close(id)
		if s.waiter.Armed() {
			ch := s.closing.Arm()
			m.mu.Unlock()
			<-ch
			m.mu.Lock()
		} else {
			m.wait(s)
		}
	}
	m.destroy(s)
}

// Abandon releases the session record without closing the descriptor,
// transferring descriptor ownership to another dispatcher instance. The
// new owner must Start the id to resume event delivery.
func (m *Manager) Abandon(id api.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil {
		return
	}
	s.failConnecting("abandoned before confirmation")
	if s.acc != nil {
		m.pool.Put(s.acc)
		s.acc = nil
	}
	delete(m.sessions, id)
	m.metrics.Inc(control.MetricSessionsClosed)
}

// Send queues data on the connection. Delivery is asynchronous; backlog
// growth surfaces through the warning policy.
func (m *Manager) Send(id api.ConnID, data []byte) error {
	return m.drv.Send(id, data)
}

// LowPrioritySend queues data behind all normal-priority traffic.
func (m *Manager) LowPrioritySend(id api.ConnID, data []byte) error {
	return m.drv.LowPrioritySend(id, data)
}

// Registered reports whether id currently has a live session.
func (m *Manager) Registered(id api.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id] != nil
}

// Connected reports the last known connectivity of a session. An
// unregistered id reads as disconnected.
func (m *Manager) Connected(id api.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	return s != nil && s.connected
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session. It is the owning component's
// cleanup hook at service stop; nothing is left to finalizers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]api.ConnID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
	log.Printf("[session] shutdown complete, %d sessions closed", len(ids))
}
