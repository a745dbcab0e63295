package concurrency

import (
	"testing"
	"time"
)

func TestRendezvous_WakeReleasesWaiter(t *testing.T) {
	var r Rendezvous
	ch := r.Arm()
	if !r.Armed() {
		t.Fatal("slot should be armed after Arm")
	}

	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	if !r.Wake() {
		t.Fatal("Wake should report a waiter")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	if r.Armed() {
		t.Error("slot should be empty after Wake")
	}
}

func TestRendezvous_WakeEmptySlot(t *testing.T) {
	var r Rendezvous
	if r.Wake() {
		t.Error("Wake on empty slot should report false")
	}
}

func TestRendezvous_DoubleArmPanics(t *testing.T) {
	var r Rendezvous
	r.Arm()
	defer func() {
		if recover() == nil {
			t.Error("second Arm should panic")
		}
	}()
	r.Arm()
}

func TestRendezvous_WakeBeforeReceiveIsNotLost(t *testing.T) {
	var r Rendezvous
	ch := r.Arm()
	r.Wake()
	select {
	case <-ch:
	default:
		t.Error("wake must be observable after the fact")
	}
}
