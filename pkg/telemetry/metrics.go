// Package telemetry provides Prometheus metrics for the audit pipeline and
// OpenTelemetry tracer bootstrap.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	stageLatency     *prometheus.HistogramVec
	stageOutcomes    *prometheus.CounterVec
	assessments      *prometheus.CounterVec
	hallucinations   prometheus.Counter
	discardedOutputs *prometheus.CounterVec
	clampedUpgrades  prometheus.Counter
	runsCompleted    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_stage_duration_seconds",
				Help:    "Latency of pipeline stages by stage name",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"stage"},
		),
		stageOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_stage_outcomes_total",
				Help: "Stage invocations by stage name and outcome",
			},
			[]string{"stage", "outcome"},
		),
		assessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_assessments_total",
				Help: "Final assessments by status",
			},
			[]string{"status"},
		),
		hallucinations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_planner_hallucinations_total",
				Help: "Requirement ids invented by the planner and discarded",
			},
		),
		discardedOutputs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_discarded_outputs_total",
				Help: "Agent outputs discarded at the validation boundary, by stage",
			},
			[]string{"stage"},
		),
		clampedUpgrades: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_verifier_clamped_upgrades_total",
				Help: "Verifier outputs clamped for attempting a status or confidence upgrade",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_runs_total",
				Help: "Completed audit runs by final state and verdict",
			},
			[]string{"state", "verdict"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.stageLatency,
		m.stageOutcomes,
		m.assessments,
		m.hallucinations,
		m.discardedOutputs,
		m.clampedUpgrades,
		m.runsCompleted,
	)
	return m
}

// Registry exposes the underlying registry for scrape handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordStage observes one stage invocation.
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	m.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
	m.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordAssessment counts a final assessment status.
func (m *Metrics) RecordAssessment(status string) {
	m.assessments.WithLabelValues(status).Inc()
}

// RecordHallucinations counts discarded planner ids.
func (m *Metrics) RecordHallucinations(n int) {
	m.hallucinations.Add(float64(n))
}

// RecordDiscard counts a validation-boundary discard for a stage.
func (m *Metrics) RecordDiscard(stage string) {
	m.discardedOutputs.WithLabelValues(stage).Inc()
}

// RecordClamp counts a clamped verifier upgrade attempt.
func (m *Metrics) RecordClamp() {
	m.clampedUpgrades.Inc()
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(state, verdict string) {
	m.runsCompleted.WithLabelValues(state, verdict).Inc()
}
