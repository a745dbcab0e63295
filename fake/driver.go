// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake driver implementation for testing and development. Provides
// predictable, controllable behavior for the api.Driver facade: tests
// script the event stream and inspect every call the session layer made.

package fake

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-sock/api"
)

// Driver is a scripted in-memory api.Driver. By default Connect, Bind,
// Start, and Close complete themselves by emitting the matching
// confirmation event, so lifecycle operations resolve without a real
// network underneath.
type Driver struct {
	mu     sync.Mutex
	feed   *eventFeed
	nextID api.ConnID

	sent    map[api.ConnID][][]byte
	lowSent map[api.ConnID][][]byte
	closed  map[api.ConnID]int
	shut    map[api.ConnID]int
	pinned  map[api.ConnID]string

	connectErr error
	refuseMsg  string

	autoConfirm bool
	autoClose   bool
	stopped     bool
}

var _ api.Driver = (*Driver)(nil)

// NewDriver creates a fake driver with self-confirming lifecycle calls.
func NewDriver() *Driver {
	return &Driver{
		feed:        newEventFeed(256),
		sent:        make(map[api.ConnID][][]byte),
		lowSent:     make(map[api.ConnID][][]byte),
		closed:      make(map[api.ConnID]int),
		shut:        make(map[api.ConnID]int),
		pinned:      make(map[api.ConnID]string),
		autoConfirm: true,
		autoClose:   true,
	}
}

// emit delivers an event without ever blocking the caller: driver calls
// may run under the session layer's state mutex while the dispatcher is
// contending for it. Delivery order is exactly emission order even when
// the consumer lags behind.
func (d *Driver) emit(ev api.Event) {
	d.feed.emit(ev)
}

func (d *Driver) allocID() api.ConnID {
	d.nextID++
	return d.nextID
}

// Connect allocates an id and, unless scripted otherwise, confirms the
// connect asynchronously.
func (d *Driver) Connect(addr string, port int) (api.ConnID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0, api.ErrDriverStopped
	}
	if d.connectErr != nil {
		err := d.connectErr
		d.connectErr = nil
		return 0, err
	}
	id := d.allocID()
	if d.refuseMsg != "" {
		d.emit(api.Event{Kind: api.EventError, ID: id, Err: d.refuseMsg})
		d.refuseMsg = ""
	} else if d.autoConfirm {
		d.emit(api.Event{Kind: api.EventConnect, ID: id, Addr: fmt.Sprintf("%s:%d", addr, port)})
	}
	return id, nil
}

// Bind allocates an id for an external descriptor and confirms it.
func (d *Driver) Bind(fd uintptr) (api.ConnID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0, api.ErrDriverStopped
	}
	id := d.allocID()
	if d.autoConfirm {
		d.emit(api.Event{Kind: api.EventConnect, ID: id, Addr: fmt.Sprintf("fd:%d", fd)})
	}
	return id, nil
}

// Start arms a descriptor and confirms it.
func (d *Driver) Start(id api.ConnID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return api.ErrDriverStopped
	}
	if d.refuseMsg != "" {
		d.emit(api.Event{Kind: api.EventError, ID: id, Err: d.refuseMsg})
		d.refuseMsg = ""
	} else if d.autoConfirm {
		d.emit(api.Event{Kind: api.EventConnect, ID: id, Addr: "started"})
	}
	return nil
}

// Listen allocates a listener id. No events until Start.
func (d *Driver) Listen(host string, port, backlog int) (api.ConnID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0, api.ErrDriverStopped
	}
	return d.allocID(), nil
}

// UDP allocates a datagram id, armed immediately.
func (d *Driver) UDP(host string, port int) (api.ConnID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return 0, api.ErrDriverStopped
	}
	return d.allocID(), nil
}

// UDPConnect records the pinned default destination.
func (d *Driver) UDPConnect(id api.ConnID, addr string, port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pinned[id] = fmt.Sprintf("%s:%d", addr, port)
	return nil
}

// Send records outbound data.
func (d *Driver) Send(id api.ConnID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return api.ErrDriverStopped
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.sent[id] = append(d.sent[id], cp)
	return nil
}

// LowPrioritySend records outbound data on the low-priority track.
func (d *Driver) LowPrioritySend(id api.ConnID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return api.ErrDriverStopped
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.lowSent[id] = append(d.lowSent[id], cp)
	return nil
}

// Close records the request and, unless scripted otherwise, emits the
// close confirmation.
func (d *Driver) Close(id api.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed[id]++
	if d.autoClose {
		d.emit(api.Event{Kind: api.EventClosed, ID: id})
	}
}

// Shutdown records the forced-shutdown request.
func (d *Driver) Shutdown(id api.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shut[id]++
}

// Events returns the scripted event stream.
func (d *Driver) Events() <-chan api.Event {
	return d.feed.out
}

// Stop closes the event stream.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true
	d.feed.close()
	return nil
}

// --- scripting hooks ---

// SetConnectError makes the next Connect fail synchronously.
func (d *Driver) SetConnectError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// RefuseNext makes the next Connect or Start be refused asynchronously
// with the given driver message.
func (d *Driver) RefuseNext(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuseMsg = msg
}

// SetAutoConfirm toggles self-confirmation of lifecycle calls.
func (d *Driver) SetAutoConfirm(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoConfirm = on
}

// SetAutoClose toggles self-confirmation of Close calls.
func (d *Driver) SetAutoClose(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoClose = on
}

// EmitData injects an inbound data event.
func (d *Driver) EmitData(id api.ConnID, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	d.emit(api.Event{Kind: api.EventData, ID: id, Data: cp})
}

// EmitClosed injects a close notification.
func (d *Driver) EmitClosed(id api.ConnID) {
	d.emit(api.Event{Kind: api.EventClosed, ID: id})
}

// EmitError injects a descriptor error.
func (d *Driver) EmitError(id api.ConnID, msg string) {
	d.emit(api.Event{Kind: api.EventError, ID: id, Err: msg})
}

// EmitAccept injects an accepted connection on a listener id. The new id
// is allocated by the driver like a real accept would.
func (d *Driver) EmitAccept(listener api.ConnID, addr string) api.ConnID {
	d.mu.Lock()
	newID := d.allocID()
	d.mu.Unlock()
	d.emit(api.Event{Kind: api.EventAccept, ID: listener, NewID: newID, Addr: addr})
	return newID
}

// EmitUDPData injects a datagram with its source address.
func (d *Driver) EmitUDPData(id api.ConnID, data []byte, addr string) {
	cp := make([]byte, len(data))
	copy(cp, data)
	d.emit(api.Event{Kind: api.EventUDPData, ID: id, Data: cp, Addr: addr})
}

// EmitWarning injects an outbound-backlog report.
func (d *Driver) EmitWarning(id api.ConnID, size int) {
	d.emit(api.Event{Kind: api.EventWarning, ID: id, Size: size})
}

// CloseCount reports how many times Close was requested for id.
func (d *Driver) CloseCount(id api.ConnID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed[id]
}

// ShutdownCount reports how many times Shutdown was requested for id.
func (d *Driver) ShutdownCount(id api.ConnID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shut[id]
}

// SentData returns everything sent on id at normal priority.
func (d *Driver) SentData(id api.ConnID) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent[id]))
	copy(out, d.sent[id])
	return out
}

// LowPrioritySentData returns everything sent on id at low priority.
func (d *Driver) LowPrioritySentData(id api.ConnID) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.lowSent[id]))
	copy(out, d.lowSent[id])
	return out
}

// PinnedAddr returns the default destination recorded by UDPConnect.
func (d *Driver) PinnedAddr(id api.ConnID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pinned[id]
}

// eventFeed queues emitted events and forwards them to the consumer from
// a single goroutine, so delivery order is exactly emission order no
// matter how far the consumer lags.
type eventFeed struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue // of api.Event
	out    chan api.Event
	stop   chan struct{}
	closed bool
}

func newEventFeed(size int) *eventFeed {
	f := &eventFeed{
		q:    queue.New(),
		out:  make(chan api.Event, size),
		stop: make(chan struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	go f.run()
	return f
}

// emit enqueues one event; it never blocks. Events after close are
// silently dropped.
func (f *eventFeed) emit(ev api.Event) {
	f.mu.Lock()
	if !f.closed {
		f.q.Add(ev)
		f.cond.Signal()
	}
	f.mu.Unlock()
}

// close ends the feeder; undelivered events are discarded. Idempotent.
func (f *eventFeed) close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.stop)
		f.cond.Signal()
	}
	f.mu.Unlock()
}

func (f *eventFeed) run() {
	for {
		f.mu.Lock()
		for f.q.Length() == 0 && !f.closed {
			f.cond.Wait()
		}
		if f.closed {
			f.mu.Unlock()
			close(f.out)
			return
		}
		ev := f.q.Remove().(api.Event)
		f.mu.Unlock()
		select {
		case f.out <- ev:
		case <-f.stop:
			close(f.out)
			return
		}
	}
}
