// File: pool/accumulator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accumulator is the per-session inbound byte store. The dispatcher pushes
// raw driver payloads in, the one resumed reader pops exact counts, lines,
// or everything. Backing storage comes from the owning AccumulatorPool and
// is recycled on release.

package pool

import "bytes"

// Accumulator collects unread inbound bytes for one session. It is not
// safe for concurrent use; the session layer serializes producer and
// consumer through its one-waiter invariant.
type Accumulator struct {
	buf  []byte
	r, w int
	pool *AccumulatorPool
}

// Len returns the number of buffered unread bytes.
func (a *Accumulator) Len() int {
	return a.w - a.r
}

// Push appends data and returns the new unread size.
func (a *Accumulator) Push(data []byte) int {
	a.ensure(len(data))
	copy(a.buf[a.w:], data)
	a.w += len(data)
	return a.Len()
}

// Pop removes and returns exactly n bytes, or (nil, false) when fewer are
// buffered. The returned slice is owned by the caller.
func (a *Accumulator) Pop(n int) ([]byte, bool) {
	if n < 0 || a.Len() < n {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, a.buf[a.r:a.r+n])
	a.r += n
	a.compact()
	return out, true
}

// ReadLine removes and returns the bytes up to the first occurrence of
// sep, excluding the separator itself. It returns (nil, false) when no
// complete line is buffered.
func (a *Accumulator) ReadLine(sep []byte) ([]byte, bool) {
	idx := bytes.Index(a.buf[a.r:a.w], sep)
	if idx < 0 {
		return nil, false
	}
	out := make([]byte, idx)
	copy(out, a.buf[a.r:a.r+idx])
	a.r += idx + len(sep)
	a.compact()
	return out, true
}

// HasLine reports whether a complete line terminated by sep is buffered.
func (a *Accumulator) HasLine(sep []byte) bool {
	return bytes.Index(a.buf[a.r:a.w], sep) >= 0
}

// ReadAll removes and returns all buffered bytes. An empty accumulator
// yields a nil slice.
func (a *Accumulator) ReadAll() []byte {
	if a.Len() == 0 {
		return nil
	}
	out := make([]byte, a.Len())
	copy(out, a.buf[a.r:a.w])
	a.r, a.w = 0, 0
	return out
}

// Clear discards all buffered bytes without copying them out.
func (a *Accumulator) Clear() {
	a.r, a.w = 0, 0
}

// ensure grows or compacts the backing array so n more bytes fit.
func (a *Accumulator) ensure(n int) {
	if len(a.buf)-a.w >= n {
		return
	}
	if len(a.buf)-a.Len() >= n {
		// Enough slack at the front; slide unread bytes down.
		copy(a.buf, a.buf[a.r:a.w])
		a.w -= a.r
		a.r = 0
		return
	}
	size := len(a.buf) * 2
	if size == 0 {
		size = defaultSlabSize
	}
	for size-a.Len() < n {
		size *= 2
	}
	grown := make([]byte, size)
	copy(grown, a.buf[a.r:a.w])
	a.w -= a.r
	a.r = 0
	a.buf = grown
}

// compact resets offsets once everything has been consumed, keeping the
// write cursor from creeping toward the end of the slab.
func (a *Accumulator) compact() {
	if a.r == a.w {
		a.r, a.w = 0, 0
	}
}
