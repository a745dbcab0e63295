// File: driver/pump.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// eventPump decouples event production from consumption: producers
// append to an unbounded FIFO and never block, a single feeder goroutine
// forwards to the dispatcher channel, so per-connection event order is
// exactly production order.

package driver

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-sock/api"
)

type eventPump struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue // of api.Event
	out    chan api.Event
	stop   chan struct{}
	closed bool
}

func newEventPump(size int) *eventPump {
	p := &eventPump{
		q:    queue.New(),
		out:  make(chan api.Event, size),
		stop: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// emit enqueues one event; it never blocks. Events after close are
// silently dropped.
func (p *eventPump) emit(ev api.Event) {
	p.mu.Lock()
	if !p.closed {
		p.q.Add(ev)
		p.cond.Signal()
	}
	p.mu.Unlock()
}

// close ends the feeder; undelivered events are discarded. Idempotent.
func (p *eventPump) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stop)
		p.cond.Signal()
	}
	p.mu.Unlock()
}

func (p *eventPump) run() {
	for {
		p.mu.Lock()
		for p.q.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			close(p.out)
			return
		}
		ev := p.q.Remove().(api.Event)
		p.mu.Unlock()
		select {
		case p.out <- ev:
		case <-p.stop:
			close(p.out)
			return
		}
	}
}
