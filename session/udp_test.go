package session_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-sock/api"
)

func TestUDPDeliversDatagramsWithSource(t *testing.T) {
	m, drv, _ := newTestManager(t)

	type datagram struct {
		data []byte
		addr string
	}
	got := make(chan datagram, 2)
	id, err := m.UDP("0.0.0.0", 5300, func(data []byte, addr string) {
		got <- datagram{data, addr}
	})
	require.NoError(t, err)
	require.True(t, m.Connected(id))

	drv.EmitUDPData(id, []byte("ping"), "9.9.9.9:53")
	drv.EmitUDPData(id, []byte("pong"), "1.1.1.1:53")

	for _, want := range []datagram{
		{[]byte("ping"), "9.9.9.9:53"},
		{[]byte("pong"), "1.1.1.1:53"},
	} {
		select {
		case d := <-got:
			assert.Equal(t, want.data, d.data)
			assert.Equal(t, want.addr, d.addr)
		case <-time.After(time.Second):
			t.Fatal("datagram was not delivered")
		}
	}
}

func TestUDPConnectPinsDestination(t *testing.T) {
	m, drv, _ := newTestManager(t)

	id, err := m.UDP("", 0, nil)
	require.NoError(t, err)
	require.NoError(t, m.UDPConnect(id, "10.1.1.1", 9000))
	assert.Equal(t, "10.1.1.1:9000", drv.PinnedAddr(id))

	// Unaddressed sends now go to the pinned destination.
	require.NoError(t, m.Send(id, []byte("dgram")))
	sent := drv.SentData(id)
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("dgram"), sent[0])
}

func TestUDPConnectOnStreamSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	err = m.UDPConnect(id, "10.1.1.1", 9000)
	assert.True(t, errors.Is(err, api.ErrNotSupported))
}

func TestReadOnUDPSessionPanics(t *testing.T) {
	m, _, _ := newTestManager(t)
	id, err := m.UDP("", 0, nil)
	require.NoError(t, err)

	defer func() {
		v := recover()
		require.NotNil(t, v, "stream reads on a datagram session must panic")
		_, ok := v.(*api.ProtocolViolation)
		assert.True(t, ok)
	}()
	_, _ = m.Read(id, 1)
}

func TestUDPClose(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.UDP("", 0, nil)
	require.NoError(t, err)

	m.Close(id)
	assert.False(t, m.Registered(id))
	assert.Equal(t, 1, drv.CloseCount(id))
}
