// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-sock.
// Expected conditions (disconnect mid-read, connect refusal) are returned
// as values; programming-contract violations panic with ProtocolViolation;
// driver-level anomalies are logged and the affected session torn down.

package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors used across the library.
var (
	// ErrDisconnected is returned by read operations when the connection
	// drops before the demand is satisfied. It accompanies whatever
	// partial bytes remained buffered.
	ErrDisconnected = errors.New("connection disconnected")
	// ErrConnectFailed wraps the driver-supplied message when an initial
	// connect or start handshake fails.
	ErrConnectFailed = errors.New("connect failed")
	// ErrUnknownSession is returned by operations on an unregistered id.
	ErrUnknownSession = errors.New("unknown session")
	// ErrNotSupported is returned for operations the platform or session
	// protocol cannot serve.
	ErrNotSupported = errors.New("operation not supported")
	// ErrDriverStopped is returned by driver calls after Stop.
	ErrDriverStopped = errors.New("driver is stopped")
)

// ProtocolViolation reports misuse of the session-layer contract:
// overlapping read demands, reusing a live id, unlocking without holding,
// tearing down a session with a non-empty lock queue. These abort via
// panic rather than being returned, since they indicate a bug in the
// caller, not a runtime condition.
type ProtocolViolation struct {
	Op     string
	ID     ConnID
	Reason string
}

// Error implements the error interface.
func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation in %s on session %d: %s", e.Op, e.ID, e.Reason)
}

// Violate panics with a ProtocolViolation describing the broken contract.
func Violate(op string, id ConnID, reason string) {
	panic(&ProtocolViolation{Op: op, ID: id, Reason: reason})
}
