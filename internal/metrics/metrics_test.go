package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New(Namespace)
	m.TurnOutcome("success")
	m.TurnOutcome("success")
	m.ObserveProbe("kokoro", false)
	m.ObservePhase("stt", 800*time.Millisecond)
	m.ToolCall("converse")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues("kokoro", "down")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voicemcp_turns_total{outcome="success"} 2`)
	assert.Contains(t, string(body), `voicemcp_turn_phase_seconds_count{phase="stt"} 1`)
	assert.Contains(t, string(body), `voicemcp_tool_calls_total{tool="converse"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.TurnOutcome("error")
	m.ObservePhase("record", time.Second)
	m.ObserveProbe("openai", true)
	m.TurnStarted()
	m.TurnFinished()
	m.SetWaiters(3)
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(Namespace), New(Namespace)
	a.TurnOutcome("error")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Turns.WithLabelValues("error")))
}
