// File: driver/sendqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection outbound backlog with two priorities. Normal-priority
// buffers always drain before low-priority ones, except that a partially
// written buffer finishes first so byte streams never interleave.

package driver

import (
	"github.com/eapache/queue"
)

// sendQueue holds unsent buffers for one connection. Not safe for
// concurrent use; the driver serializes access under its mutex.
type sendQueue struct {
	high *queue.Queue // of []byte
	low  *queue.Queue // of []byte
	// offset tracks how much of the current head has been written.
	offset  int
	current []byte
	size    int // total unsent bytes
}

func newSendQueue() *sendQueue {
	return &sendQueue{high: queue.New(), low: queue.New()}
}

// push appends a buffer at the given priority.
func (q *sendQueue) push(data []byte, lowPriority bool) {
	if lowPriority {
		q.low.Add(data)
	} else {
		q.high.Add(data)
	}
	q.size += len(data)
}

// empty reports whether all queued bytes have been written.
func (q *sendQueue) empty() bool {
	return q.current == nil && q.high.Length() == 0 && q.low.Length() == 0
}

// pending returns the total unsent byte count.
func (q *sendQueue) pending() int {
	return q.size
}

// next selects the buffer to continue writing: the partially written one
// if any, then head of high, then head of low.
func (q *sendQueue) next() []byte {
	if q.current != nil {
		return q.current[q.offset:]
	}
	if q.high.Length() > 0 {
		q.current = q.high.Remove().([]byte)
		q.offset = 0
		return q.current
	}
	if q.low.Length() > 0 {
		q.current = q.low.Remove().([]byte)
		q.offset = 0
		return q.current
	}
	return nil
}

// flush writes queued buffers through write until everything is sent or
// write reports a short count (EAGAIN upstream). It returns whether the
// queue fully drained.
func (q *sendQueue) flush(write func([]byte) (int, error)) (bool, error) {
	for {
		buf := q.next()
		if buf == nil {
			return true, nil
		}
		n, err := write(buf)
		if n > 0 {
			q.offset += n
			q.size -= n
		}
		if err != nil {
			return false, err
		}
		if n < len(buf) {
			// Kernel buffer full; resume on the next writable event.
			return false, nil
		}
		q.current = nil
		q.offset = 0
	}
}
