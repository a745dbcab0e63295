package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-sock/api"
)

func TestLockUncontended(t *testing.T) {
	m, _, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	require.NoError(t, m.Lock(id))
	require.NoError(t, m.Unlock(id))
}

func TestLockUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.True(t, errors.Is(m.Lock(404), api.ErrUnknownSession))
	assert.True(t, errors.Is(m.Unlock(404), api.ErrUnknownSession))
}

func TestUnlockWithoutHoldingPanics(t *testing.T) {
	m, _, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	defer func() {
		v := recover()
		require.NotNil(t, v, "unlock without holding must panic")
		_, ok := v.(*api.ProtocolViolation)
		assert.True(t, ok)
	}()
	_ = m.Unlock(id)
}

// Two tasks serializing a two-step exchange through the session lock:
// the second task's writes must never interleave with the first's.
func TestLockSerializesExchanges(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	// Hold the lock so both workers queue behind it in a known order.
	require.NoError(t, m.Lock(id))

	var wg sync.WaitGroup
	exchange := func(name string) {
		defer wg.Done()
		require.NoError(t, m.Lock(id))
		require.NoError(t, m.Send(id, []byte(name+"-1")))
		time.Sleep(20 * time.Millisecond) // widen the interleave window
		require.NoError(t, m.Send(id, []byte(name+"-2")))
		require.NoError(t, m.Unlock(id))
	}
	wg.Add(2)
	go exchange("a")
	time.Sleep(50 * time.Millisecond) // make a's queue position deterministic
	go exchange("b")
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, m.Unlock(id))
	wg.Wait()

	sent := drv.SentData(id)
	require.Len(t, sent, 4)
	want := []string{"a-1", "a-2", "b-1", "b-2"}
	for i, w := range want {
		assert.Equal(t, w, string(sent[i]), "writes interleaved across lock holders")
	}

	// The queue must be fully drained before the session can close.
	m.Close(id)
	assert.False(t, m.Registered(id))
}

// Lock grants follow strict arrival order across many waiters.
func TestLockStrictFIFOOrder(t *testing.T) {
	m, _, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	require.NoError(t, m.Lock(id))

	const n = 6
	order := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		name := fmt.Sprintf("w%d", i)
		go func(name string) {
			defer wg.Done()
			require.NoError(t, m.Lock(id))
			order <- name
			require.NoError(t, m.Unlock(id))
		}(name)
		time.Sleep(30 * time.Millisecond) // enforce distinct arrival order
	}

	require.NoError(t, m.Unlock(id))
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("w%d", i), <-order)
	}
}
