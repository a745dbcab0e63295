// File: api/driver.go
// Driver facade for the native non-blocking socket machinery.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ConnID identifies one descriptor owned by a driver. Ids are allocated
// by the driver and never reused within a run.
type ConnID int32

// Driver abstracts the platform event engine: it owns descriptors,
// performs all I/O, and reports progress exclusively through Events().
//
// Every method may be called from any goroutine. Implementations must
// never block a caller on the event consumer: the session layer calls
// into the driver while holding the same state the dispatcher needs to
// drain events, so a driver that emits synchronously into a full
// channel deadlocks the stack.
//
// Lifecycle calls (Connect, Bind, Start) only initiate work; the
// outcome arrives later as EventConnect or EventError carrying the
// returned id. Listen creates a silent descriptor that produces nothing
// until Start arms it.
type Driver interface {
	// Connect starts a non-blocking stream connect to addr:port.
	Connect(addr string, port int) (ConnID, error)
	// Bind adopts an externally created descriptor.
	Bind(fd uintptr) (ConnID, error)
	// Start arms a descriptor for event delivery and confirms it.
	Start(id ConnID) error
	// Listen creates a listening descriptor, silent until Start.
	Listen(host string, port, backlog int) (ConnID, error)

	// UDP creates a datagram descriptor bound to host:port.
	UDP(host string, port int) (ConnID, error)
	// UDPConnect pins the default destination for unaddressed sends.
	UDPConnect(id ConnID, addr string, port int) error

	// Send queues outbound data at normal priority.
	Send(id ConnID, data []byte) error
	// LowPrioritySend queues outbound data behind all normal traffic.
	LowPrioritySend(id ConnID, data []byte) error

	// Close tears the descriptor down after flushing queued output.
	// EventClosed confirms completion. Unknown ids are ignored.
	Close(id ConnID)
	// Shutdown forces the descriptor down without flushing.
	Shutdown(id ConnID)

	// Events returns the stream consumed by the dispatcher. The channel
	// is closed after Stop once the backlog settles.
	Events() <-chan Event
	// Stop closes every descriptor and ends event production.
	Stop() error
}
