package session_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-sock/api"
)

type readResult struct {
	data []byte
	err  error
}

func TestReadExactFromBuffered(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	drv.EmitData(id, []byte("hello world"))

	data, err := m.Read(id, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = m.Read(id, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte(" world"), data)
}

func TestReadSuspendsUntilData(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan readResult, 1)
	go func() {
		data, err := m.ReadAll(id)
		res <- readResult{data, err}
	}()
	time.Sleep(50 * time.Millisecond)

	drv.EmitData(id, []byte("fives"))
	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, []byte("fives"), r.data)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by the data event")
	}
}

func TestReadExactAcrossChunks(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan readResult, 1)
	go func() {
		data, err := m.Read(id, 8)
		res <- readResult{data, err}
	}()
	time.Sleep(50 * time.Millisecond)

	// Demand persists across events until 8 bytes are buffered.
	drv.EmitData(id, []byte("abc"))
	time.Sleep(20 * time.Millisecond)
	drv.EmitData(id, []byte("defgh"))

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, []byte("abcdefgh"), r.data)
	case <-time.After(time.Second):
		t.Fatal("exact read never completed")
	}
}

func TestReadDisconnectReturnsPartial(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan readResult, 1)
	go func() {
		data, err := m.Read(id, 100)
		res <- readResult{data, err}
	}()
	time.Sleep(50 * time.Millisecond)

	drv.EmitData(id, []byte("partial"))
	time.Sleep(20 * time.Millisecond)
	drv.EmitClosed(id)

	select {
	case r := <-res:
		assert.True(t, errors.Is(r.err, api.ErrDisconnected))
		assert.Equal(t, []byte("partial"), r.data, "failure must carry the partial remainder")
	case <-time.After(time.Second):
		t.Fatal("read never observed the disconnect")
	}
}

func TestReadLinePendingAcrossEvents(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan readResult, 1)
	go func() {
		line, err := m.ReadLine(id, nil)
		res <- readResult{line, err}
	}()
	time.Sleep(50 * time.Millisecond)

	drv.EmitData(id, []byte("par"))
	time.Sleep(20 * time.Millisecond)
	drv.EmitData(id, []byte("tial"))
	time.Sleep(20 * time.Millisecond)
	drv.EmitData(id, []byte(" line\nnext"))

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, []byte("partial line"), r.data, "line excludes the separator")
	case <-time.After(time.Second):
		t.Fatal("line read never completed")
	}

	// The bytes after the separator stay buffered for the next read.
	data, err := m.ReadAll(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("next"), data)
}

func TestReadLineCustomSeparator(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	drv.EmitData(id, []byte("head\r\nbody"))
	line, err := m.ReadLine(id, []byte("\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("head"), line)
}

func TestReadLineDisconnectReturnsRemainder(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan readResult, 1)
	go func() {
		line, err := m.ReadLine(id, nil)
		res <- readResult{line, err}
	}()
	time.Sleep(50 * time.Millisecond)

	drv.EmitData(id, []byte("no newline here"))
	time.Sleep(20 * time.Millisecond)
	drv.EmitClosed(id)

	select {
	case r := <-res:
		assert.True(t, errors.Is(r.err, api.ErrDisconnected))
		assert.Equal(t, []byte("no newline here"), r.data)
	case <-time.After(time.Second):
		t.Fatal("line read never observed the disconnect")
	}
}

func TestReadAllAfterDisconnectWithNothingBuffered(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	drv.EmitClosed(id)
	require.Eventually(t, func() bool { return !m.Connected(id) },
		time.Second, 5*time.Millisecond)

	data, err := m.ReadAll(id)
	assert.True(t, errors.Is(err, api.ErrDisconnected))
	assert.Empty(t, data)
}

func TestBlockWakesOnDataWithoutConsuming(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan bool, 1)
	go func() { res <- m.Block(id) }()
	time.Sleep(50 * time.Millisecond)

	drv.EmitData(id, []byte("peek"))
	select {
	case connected := <-res:
		assert.True(t, connected)
	case <-time.After(time.Second):
		t.Fatal("block was not woken by data")
	}

	// Block must not consume: the data is still readable.
	data, err := m.ReadAll(id)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, []byte("peek")))
}

func TestBlockReportsDisconnect(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan bool, 1)
	go func() { res <- m.Block(id) }()
	time.Sleep(50 * time.Millisecond)

	drv.EmitClosed(id)
	select {
	case connected := <-res:
		assert.False(t, connected)
	case <-time.After(time.Second):
		t.Fatal("block was not woken by close")
	}
}

func TestReadUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Read(404, 1)
	assert.True(t, errors.Is(err, api.ErrUnknownSession))
}

func TestOverlappingDemandPanics(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	res := make(chan readResult, 1)
	go func() {
		data, err := m.Read(id, 4)
		res <- readResult{data, err}
	}()
	time.Sleep(50 * time.Millisecond)

	func() {
		defer func() {
			v := recover()
			require.NotNil(t, v, "second concurrent demand must panic")
			pv, ok := v.(*api.ProtocolViolation)
			require.True(t, ok, "panic value should be a ProtocolViolation")
			assert.Equal(t, id, pv.ID)
		}()
		_, _ = m.Read(id, 4)
	}()

	// Release the legitimate reader.
	drv.EmitData(id, []byte("data"))
	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, []byte("data"), r.data)
	case <-time.After(time.Second):
		t.Fatal("first reader never completed")
	}
}
