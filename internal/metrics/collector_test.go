package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewCollector("pipeflow", reg, zaptest.NewLogger(t)), reg
}

func TestRecordExecution(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordExecution("COMPLETED", 2*time.Second)
	c.RecordExecution("COMPLETED", time.Second)
	c.RecordExecution("FAILED", time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "pipeflow_executions_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}

func TestRecordStepAndRetry(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordStep("transform", "COMPLETED", 100*time.Millisecond)
	c.RecordStepRetry("transform")
	c.RecordStepRetry("transform")

	expected := `
		# HELP pipeflow_step_retries_total Total number of step retry attempts
		# TYPE pipeflow_step_retries_total counter
		pipeflow_step_retries_total{action="transform"} 2
	`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"pipeflow_step_retries_total"))
}

func TestGauges(t *testing.T) {
	c, reg := newTestCollector(t)

	c.SetAwaitingSteps(4)
	c.SetRetryQueueDepth(7)
	c.RecordDBConnections("pipeflow", 10, 3)

	assert.Equal(t, float64(4), testutil.ToFloat64(c.awaitingSteps))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.retryQueueDepth))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["pipeflow_db_connections_open"])
	assert.True(t, names["pipeflow_db_connections_idle"])
}

func TestIsolatedRegistries(t *testing.T) {
	// Two collectors with separate registries must not collide.
	c1, _ := newTestCollector(t)
	c2, _ := newTestCollector(t)

	c1.RecordTimeout()
	c2.RecordTimeout()
	c2.RecordTimeout()

	assert.Equal(t, float64(1), testutil.ToFloat64(c1.timeoutsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(c2.timeoutsTotal))
}
