package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	m := New("test")

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded("stopped")
	m.SessionRejected("mic_denied")

	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionsActive), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("started")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("mic_denied")), 1e-9)
}

func TestToolAndAudioCounters(t *testing.T) {
	m := New("")

	m.ToolCall("checkInvoices", "ok", 0.2)
	m.ToolCall("checkInvoices", "error", 1.5)
	m.AudioChunk("in")
	m.DecodeError()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("checkInvoices", "error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AudioChunksTotal.WithLabelValues("in")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DecodeErrorsTotal), 1e-9)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `maxxi_tool_calls_total{outcome="ok",tool="checkInvoices"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionEnded("stopped")
		m.SessionRejected("x")
		m.AudioChunk("out")
		m.DecodeError()
		m.ToolCall("x", "ok", 0)
	})
}
