package session_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
)

// Breaching the inbound limit always tears the session down: the buffer
// is discarded and no later read succeeds.
func TestBufferLimitBreachClosesSession(t *testing.T) {
	m, drv, metrics := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)
	require.NoError(t, m.SetLimit(id, 1024))

	drv.EmitData(id, bytes.Repeat([]byte{0x01}, 1000))
	drv.EmitData(id, bytes.Repeat([]byte{0x02}, 1000))

	require.Eventually(t, func() bool {
		return !m.Connected(id)
	}, time.Second, 5*time.Millisecond, "overflow must force-close the connection")
	assert.Equal(t, 1, drv.CloseCount(id))
	assert.Equal(t, int64(1), metrics.Get(control.MetricBufferOverflows))

	data, err := m.Read(id, 1)
	assert.True(t, errors.Is(err, api.ErrDisconnected))
	assert.Empty(t, data, "the buffer must be discarded, not partially served")
}

func TestBufferLimitNotBreached(t *testing.T) {
	m, drv, _ := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)
	require.NoError(t, m.SetLimit(id, 1024))

	drv.EmitData(id, bytes.Repeat([]byte{0x03}, 1000))
	data, err := m.Read(id, 1000)
	require.NoError(t, err)
	assert.Len(t, data, 1000)
	assert.True(t, m.Connected(id))
}

// The default warning policy reports at most once per 64 KiB of backlog
// growth, and the baseline moves on every event even below the
// threshold.
func TestDefaultWarningThrottle(t *testing.T) {
	m, drv, metrics := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	drv.EmitWarning(id, 70*1024) // 70 KiB over a zero baseline: report
	require.Eventually(t, func() bool {
		return metrics.Get(control.MetricWarningsRaised) == 1
	}, time.Second, 5*time.Millisecond)

	drv.EmitWarning(id, 100*1024) // +30 KiB: below threshold, no report
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), metrics.Get(control.MetricWarningsRaised))

	// The baseline moved to 100 KiB regardless, so another +64 KiB is
	// needed before the next report.
	drv.EmitWarning(id, 164*1024)
	require.Eventually(t, func() bool {
		return metrics.Get(control.MetricWarningsRaised) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestCustomWarningCallback(t *testing.T) {
	m, drv, metrics := newTestManager(t)
	id, err := m.Open("10.0.0.1", 8000)
	require.NoError(t, err)

	got := make(chan int, 1)
	require.NoError(t, m.OnWarning(id, func(cbID api.ConnID, size int) {
		if cbID == id {
			got <- size
		}
	}))

	drv.EmitWarning(id, 512) // far below the default threshold
	select {
	case size := <-got:
		assert.Equal(t, 512, size, "custom callback sees every report unthrottled")
	case <-time.After(time.Second):
		t.Fatal("custom warning callback was not invoked")
	}
	assert.Equal(t, int64(0), metrics.Get(control.MetricWarningsRaised))
}

func TestSetLimitUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.True(t, errors.Is(m.SetLimit(404, 1024), api.ErrUnknownSession))
	assert.True(t, errors.Is(m.OnWarning(404, nil), api.ErrUnknownSession))
}
