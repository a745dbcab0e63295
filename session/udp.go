// File: session/udp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// UDP variant: a reduced session with no accumulator, no read demand, and
// no lock-queue interaction. Every inbound datagram is delivered to the
// session callback together with its source address.

package session

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-sock/api"
)

// UDP creates a datagram session. When host is non-empty the underlying
// socket is bound to host:port. cb receives every inbound datagram; a nil
// cb discards traffic (send-only session).
func (m *Manager) UDP(host string, port int, cb DatagramFunc) (api.ConnID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.drv.UDP(host, port)
	if err != nil {
		return 0, errors.Wrapf(err, "udp %s:%d", host, port)
	}
	s := m.register(id, UDP)
	s.connected = true
	s.datagram = cb
	return id, nil
}

// UDPConnect pins a default destination for subsequent unaddressed sends
// on the datagram session.
func (m *Manager) UDPConnect(id api.ConnID, addr string, port int) error {
	m.mu.Lock()
	s := m.sessions[id]
	if s == nil {
		m.mu.Unlock()
		return api.ErrUnknownSession
	}
	if s.proto != UDP {
		m.mu.Unlock()
		return errors.Wrapf(api.ErrNotSupported, "udp connect on stream session %d", id)
	}
	m.mu.Unlock()
	if err := m.drv.UDPConnect(id, addr, port); err != nil {
		return errors.Wrapf(err, "udp connect %d to %s:%d", id, addr, port)
	}
	return nil
}
