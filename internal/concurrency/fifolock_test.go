package concurrency

import (
	"sync"
	"testing"
	"time"
)

func TestFIFOLock_UncontendedAcquire(t *testing.T) {
	l := NewFIFOLock()
	if ch := l.Acquire(); ch != nil {
		t.Fatal("uncontended Acquire should return nil")
	}
	if l.Len() != 1 {
		t.Fatalf("holder should occupy the queue, got len %d", l.Len())
	}
	if !l.Release() {
		t.Fatal("Release should succeed while held")
	}
	if l.Len() != 0 {
		t.Fatalf("queue should be empty after release, got %d", l.Len())
	}
}

func TestFIFOLock_ReleaseUnheld(t *testing.T) {
	l := NewFIFOLock()
	if l.Release() {
		t.Error("Release on unheld lock should report false")
	}
}

// Contended acquisitions must be granted in strict arrival order.
func TestFIFOLock_StrictOrder(t *testing.T) {
	var mu sync.Mutex
	l := NewFIFOLock()

	mu.Lock()
	if ch := l.Acquire(); ch != nil {
		t.Fatal("first Acquire should be immediate")
	}
	mu.Unlock()

	const waiters = 8
	order := make(chan int, waiters)
	started := make(chan struct{}, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		mu.Lock()
		ch := l.Acquire()
		mu.Unlock()
		if ch == nil {
			t.Fatal("contended Acquire should queue")
		}
		wg.Add(1)
		go func(i int, ch <-chan struct{}) {
			defer wg.Done()
			started <- struct{}{}
			<-ch
			order <- i
			mu.Lock()
			l.Release()
			mu.Unlock()
		}(i, ch)
	}
	for i := 0; i < waiters; i++ {
		<-started
	}

	mu.Lock()
	l.Release() // hand the lock to waiter 0
	mu.Unlock()
	wg.Wait()

	for want := 0; want < waiters; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("acquisition order broken: got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter was never granted the lock")
		}
	}
}
