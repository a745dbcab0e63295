// File: pool/pool.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// defaultSlabSize is the initial backing array handed to a fresh or
// recycled accumulator.
const defaultSlabSize = 4 * 1024

// SyncPool wraps sync.Pool for generic usage.
type SyncPool[T any] struct {
	pool *sync.Pool
}

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	return &SyncPool[T]{
		pool: &sync.Pool{New: func() any { return creator() }},
	}
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	sp.pool.Put(obj)
}

// AccumulatorPool hands out session accumulators with recycled backing
// arrays. Each session owns exactly one accumulator between Get and Put;
// Put transfers ownership back and must not race outstanding reads.
type AccumulatorPool struct {
	accs *SyncPool[*Accumulator]
}

// NewAccumulatorPool creates an empty pool.
func NewAccumulatorPool() *AccumulatorPool {
	p := &AccumulatorPool{}
	p.accs = NewSyncPool(func() *Accumulator {
		return &Accumulator{buf: make([]byte, defaultSlabSize), pool: p}
	})
	return p
}

// Get returns an empty accumulator owned by the caller.
func (p *AccumulatorPool) Get() *Accumulator {
	a := p.accs.Get()
	a.Clear()
	a.pool = p
	return a
}

// Put releases an accumulator back to the pool, discarding its contents.
func (p *AccumulatorPool) Put(a *Accumulator) {
	if a == nil {
		return
	}
	a.Clear()
	p.accs.Put(a)
}
