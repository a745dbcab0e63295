// Package session
// Author: momentics <momentics@gmail.com>
//
// Blocking-style socket session layer over a non-blocking event driver.
// One Manager owns the registry of live sessions and runs the event
// dispatch loop; calling goroutines suspend on a per-session rendezvous
// slot until the dispatcher satisfies their read demand, confirms a
// connect, or completes a close. A per-session FIFO lock lets higher
// protocols serialize multi-step exchanges over one connection.
//
// Concurrency model: a single manager mutex guards the registry and all
// session state, standing in for the cooperative dispatch thread of the
// underlying engine. Every suspension point releases the mutex and blocks
// on a one-shot channel; the dispatcher wakes at most one waiter per
// session, so the session's accumulator is never touched concurrently.

package session
