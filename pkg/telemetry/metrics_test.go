package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics()

	m.RecordStage("reasoner", "ok", 120*time.Millisecond)
	m.RecordStage("reasoner", "discarded", 80*time.Millisecond)
	m.RecordAssessment("COMPLIANT")
	m.RecordAssessment("COMPLIANT")
	m.RecordHallucinations(3)
	m.RecordDiscard("reasoner")
	m.RecordClamp()
	m.RecordRun("COMPLETED", "GREEN")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageOutcomes.WithLabelValues("reasoner", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageOutcomes.WithLabelValues("reasoner", "discarded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.assessments.WithLabelValues("COMPLIANT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.hallucinations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discardedOutputs.WithLabelValues("reasoner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clampedUpgrades))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsCompleted.WithLabelValues("COMPLETED", "GREEN")))
}

func TestMetricsUsePrivateRegistry(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	require.NotSame(t, a.Registry(), b.Registry())

	a.RecordClamp()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.clampedUpgrades))

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
