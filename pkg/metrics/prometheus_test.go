package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CountsOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordAgentRun("sma", "healthy", 0.02)
	r.RecordAgentRun("sma", "error", 0.01)
	r.RecordAgentRun("sma", "healthy", 0.03)
	r.RecordSignals("sma", 3)
	r.RecordHeartbeatMissed("technical")
	r.RecordQueueDepth("orders", "dead", 4)
	r.RecordQueueDepth("orders", "dead", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.agentRuns.WithLabelValues("sma", "healthy")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.signalsEmitted.WithLabelValues("sma")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.heartbeatsMissed.WithLabelValues("technical")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("orders", "dead")))
}

func TestRecorder_TwoRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
