// File: internal/concurrency/fifolock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FIFOLock is an ordered mutual-exclusion queue. The head of the queue is
// the current holder; later arrivals wait on their own one-shot channel
// and are woken strictly in arrival order. Wait slots are kept in an
// eapache queue, which grows as needed and never reorders.

package concurrency

import (
	"github.com/eapache/queue"
)

// FIFOLock grants mutual exclusion in strict arrival order. Methods must
// be called under an external mutex; only the channel receive happens
// outside it.
type FIFOLock struct {
	waiters *queue.Queue // of chan struct{}; head is the holder
}

// NewFIFOLock creates an unheld lock.
func NewFIFOLock() *FIFOLock {
	return &FIFOLock{waiters: queue.New()}
}

// Acquire attempts to take the lock. A nil return means the lock was
// acquired immediately. Otherwise the caller must release the external
// mutex and receive from the returned channel; the lock is held once the
// receive completes.
func (l *FIFOLock) Acquire() <-chan struct{} {
	if l.waiters.Length() == 0 {
		// Uncontended: park a placeholder so the queue head marks us
		// as the holder.
		l.waiters.Add((chan struct{})(nil))
		return nil
	}
	ch := make(chan struct{})
	l.waiters.Add(ch)
	return ch
}

// Release drops the current holder and wakes the next waiter in order.
// It reports false when the lock was not held.
func (l *FIFOLock) Release() bool {
	if l.waiters.Length() == 0 {
		return false
	}
	l.waiters.Remove()
	if l.waiters.Length() > 0 {
		next := l.waiters.Peek().(chan struct{})
		close(next)
	}
	return true
}

// Len returns the number of queued entries including the holder.
func (l *FIFOLock) Len() int {
	return l.waiters.Length()
}
