// File: session/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event dispatch loop: demultiplexes driver events by kind and id and
// drives session state transitions. Events for one connection are applied
// strictly in production order; across connections no order is implied.
//
// User callbacks never run under the manager mutex. Accept handlers run
// on a fresh goroutine because they re-enter the manager (Start suspends
// until the dispatcher confirms, which would deadlock the loop).
// Datagram and warning callbacks run on the dispatch goroutine after the
// mutex is released, preserving per-session delivery order.

package session

import (
	"context"
	"log"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
)

// Run consumes driver events until ctx is cancelled or the driver closes
// its event stream. It is the single logical dispatch thread; run it on
// exactly one goroutine per manager.
func (m *Manager) Run(ctx context.Context) error {
	events := m.drv.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.dispatch(ev)
		}
	}
}

// dispatch applies one event under the manager mutex, then invokes any
// user callback it produced outside of it.
func (m *Manager) dispatch(ev api.Event) {
	var post func()
	m.mu.Lock()
	switch ev.Kind {
	case api.EventData:
		m.onData(ev)
	case api.EventConnect:
		m.onConnect(ev)
	case api.EventClosed:
		m.onClosed(ev)
	case api.EventAccept:
		m.onAccept(ev)
	case api.EventError:
		m.onError(ev)
	case api.EventUDPData:
		post = m.onUDPData(ev)
	case api.EventWarning:
		post = m.onWarning(ev)
	default:
		log.Printf("[session] dropping event of unknown kind %d for %d", ev.Kind, ev.ID)
		m.metrics.Inc(control.MetricEventsDropped)
	}
	m.mu.Unlock()
	if post != nil {
		post()
	}
}

// drop logs and counts an event for an unregistered id. Defensive only:
// late events after close are expected, never a failure.
func (m *Manager) drop(ev api.Event) {
	log.Printf("[session] dropping %s event for unknown session %d", ev.Kind, ev.ID)
	m.metrics.Inc(control.MetricEventsDropped)
}

// onData appends the payload, enforces the inbound buffer limit, and
// wakes the waiter once the pending demand is satisfiable.
func (m *Manager) onData(ev api.Event) {
	s := m.sessions[ev.ID]
	if s == nil || s.acc == nil {
		m.drop(ev)
		return
	}
	size := s.acc.Push(ev.Data)
	m.metrics.Add(control.MetricBytesBuffered, int64(len(ev.Data)))
	if s.limit > 0 && size > s.limit {
		// Hard failure: the consumer is slower than the producer and
		// the session must not grow without bound. Not retryable.
		log.Printf("[session] buffer overflow on %d: %d bytes buffered, limit %d; closing",
			s.id, size, s.limit)
		m.metrics.Inc(control.MetricBufferOverflows)
		s.acc.Clear()
		m.drv.Close(s.id)
		return
	}
	if s.demand.kind != demandNone && s.demand.satisfiedBy(s.acc) {
		s.demand = readDemand{}
		s.waiter.Wake()
	}
}

// onConnect marks the session connected and resumes the goroutine
// suspended in Open, Bind, or Start.
func (m *Manager) onConnect(ev api.Event) {
	s := m.sessions[ev.ID]
	if s == nil {
		m.drop(ev)
		return
	}
	s.connected = true
	s.connecting = false
	s.addr = ev.Addr
	s.waiter.Wake()
}

// onClosed marks the session disconnected and cancels any pending demand
// implicitly: the waiter resumes and observes disconnect semantics.
func (m *Manager) onClosed(ev api.Event) {
	s := m.sessions[ev.ID]
	if s == nil {
		m.drop(ev)
		return
	}
	s.connected = false
	s.demand = readDemand{}
	s.waiter.Wake()
}

// onAccept routes a newly accepted descriptor to the listening session's
// accept handler. Without a registered listener the descriptor is closed
// immediately so it cannot leak.
func (m *Manager) onAccept(ev api.Event) {
	s := m.sessions[ev.ID]
	if s == nil || s.accept == nil {
		log.Printf("[session] no listener for accept on %d, closing %d", ev.ID, ev.NewID)
		m.drv.Close(ev.NewID)
		m.metrics.Inc(control.MetricEventsDropped)
		return
	}
	go s.accept(ev.NewID, ev.Addr)
}

// onError records the failure for a pending connect, logs it otherwise,
// and requests a shutdown so the descriptor is not left half-open.
func (m *Manager) onError(ev api.Event) {
	s := m.sessions[ev.ID]
	if s == nil {
		m.drop(ev)
		return
	}
	if s.connecting {
		s.connectErr = ev.Err
	} else if s.connected {
		log.Printf("[session] error on %d: %s", ev.ID, ev.Err)
	}
	s.connected = false
	s.demand = readDemand{}
	m.drv.Shutdown(ev.ID)
	s.waiter.Wake()
}

// onUDPData hands the datagram and source address to the session's
// callback. No buffering, no demand tracking.
func (m *Manager) onUDPData(ev api.Event) func() {
	s := m.sessions[ev.ID]
	if s == nil || s.datagram == nil {
		m.drop(ev)
		return nil
	}
	cb := s.datagram
	return func() { cb(ev.Data, ev.Addr) }
}
