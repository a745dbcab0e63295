// File: internal/concurrency/rendezvous.go
// Package concurrency implements the suspend/wake primitives of the
// session layer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Rendezvous is the single-slot handshake between one suspended goroutine
// and the event dispatcher. At most one waiter may occupy the slot; the
// wake side is a one-shot channel close, so a wake is never lost even when
// it races the waiter reaching the receive.

package concurrency

// Rendezvous is a single-slot suspend/wake handshake. The zero value is
// ready to use. Arm and Wake must be externally serialized; the session
// manager calls both under its state mutex.
type Rendezvous struct {
	ch chan struct{}
}

// Armed reports whether a waiter currently occupies the slot.
func (r *Rendezvous) Armed() bool {
	return r.ch != nil
}

// Arm occupies the slot and returns the channel the caller must receive
// from after releasing the state mutex. Arming an occupied slot panics:
// the one-waiter-per-slot invariant is a caller contract.
func (r *Rendezvous) Arm() <-chan struct{} {
	if r.ch != nil {
		panic("concurrency: rendezvous slot already armed")
	}
	r.ch = make(chan struct{})
	return r.ch
}

// Wake releases the waiter, if any, and empties the slot. It reports
// whether a waiter was present.
func (r *Rendezvous) Wake() bool {
	if r.ch == nil {
		return false
	}
	close(r.ch)
	r.ch = nil
	return true
}
