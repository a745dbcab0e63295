// File: api/events.go
// Package api defines core event types for hioload-sock.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// EventKind discriminates driver events.
type EventKind uint8

const (
	// EventData carries inbound stream bytes for a connection.
	EventData EventKind = iota
	// EventConnect confirms a connect/start handshake.
	EventConnect
	// EventClosed reports that a descriptor has been fully closed.
	EventClosed
	// EventAccept reports a newly accepted connection on a listener.
	EventAccept
	// EventError reports a descriptor-level failure.
	EventError
	// EventUDPData carries one inbound datagram with its source address.
	EventUDPData
	// EventWarning reports the current outbound backlog size.
	EventWarning
)

// String returns the event kind name for logs.
func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventConnect:
		return "connect"
	case EventClosed:
		return "closed"
	case EventAccept:
		return "accept"
	case EventError:
		return "error"
	case EventUDPData:
		return "udp"
	case EventWarning:
		return "warning"
	}
	return "unknown"
}

// Event is one demultiplexable driver notification. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind  EventKind
	ID    ConnID
	Data  []byte // EventData, EventUDPData payload; ownership transfers to the consumer
	Addr  string // EventConnect, EventAccept, EventUDPData remote address
	NewID ConnID // EventAccept accepted descriptor id
	Err   string // EventError driver-supplied message
	Size  int    // EventWarning unsent byte count
}
