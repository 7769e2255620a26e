// Package orchestrator drives the agentic evaluation pipeline: planner
// selection, per-requirement fan-out through retriever, reasoner and
// verifier, deterministic verdict aggregation and sealing of the completed
// run. All per-requirement faults are absorbed locally and degrade that
// requirement to UNKNOWN; only run-wide faults fail the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clausewise/clausewise/pkg/agents"
	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/seal"
	"github.com/clausewise/clausewise/pkg/telemetry"
)

// Planner selects requirement ids to evaluate.
type Planner interface {
	Plan(ctx context.Context, cat *catalog.Snapshot, documentSummary string) agents.PlanResult
}

// Retriever returns the evidence bundle for a requirement.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.Requirement) (domain.EvidenceBundle, error)
}

// Reasoner judges a requirement against its evidence.
type Reasoner interface {
	Assess(ctx context.Context, req domain.Requirement, bundle domain.EvidenceBundle) (domain.Assessment, string)
}

// Verifier re-checks an assessment, downgrade-only.
type Verifier interface {
	Verify(ctx context.Context, assessment domain.Assessment, bundle domain.EvidenceBundle) (domain.VerifiedAssessment, string)
}

// SelectionPolicy yields ids that must be evaluated regardless of planner
// output.
type SelectionPolicy interface {
	ForcedSet(ctx context.Context, cat *catalog.Snapshot) []string
}

// Options configure an Orchestrator.
type Options struct {
	// Workers bounds the per-requirement fan-out. Zero selects 4.
	Workers int
	// RequirementTimeout bounds each requirement's inner pipeline. A timeout
	// degrades that single requirement to UNKNOWN; siblings are unaffected.
	// Zero disables the per-requirement deadline.
	RequirementTimeout time.Duration
	// Selection force-includes requirements beyond the planner's choice.
	// Nil disables force-inclusion.
	Selection SelectionPolicy
	Metrics   *telemetry.Metrics
	Events    *seal.EventLog
	Logger    *slog.Logger
}

// Orchestrator coordinates the agent pipeline for one catalog snapshot.
type Orchestrator struct {
	cat       *catalog.Snapshot
	planner   Planner
	retriever Retriever
	reasoner  Reasoner
	verifier  Verifier
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates an orchestrator over the given snapshot and agents.
func New(cat *catalog.Snapshot, planner Planner, retriever Retriever, reasoner Reasoner, verifier Verifier, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cat:       cat,
		planner:   planner,
		retriever: retriever,
		reasoner:  reasoner,
		verifier:  verifier,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("clausewise/orchestrator"),
	}
}

// requirementResult is one worker's output. Each worker owns exactly one
// slot; no shared mutable state, no locking.
type requirementResult struct {
	assessment domain.VerifiedAssessment
	trace      []domain.TraceEntry
}

// Evaluate runs the full pipeline and mutates the run in place: assessments,
// verdict, trace, fingerprint and state. A non-nil error means the run is
// FAILED and carries no partial verdict.
func (o *Orchestrator) Evaluate(ctx context.Context, run *domain.AuditRun, documentSummary string) error {
	ctx, span := o.tracer.Start(ctx, "audit.evaluate",
		trace.WithAttributes(attribute.String("run.id", run.ID), attribute.String("policy.id", run.PolicyID)))
	defer span.End()

	if run.Frozen() {
		return domain.ErrRunFrozen
	}
	if o.cat == nil || o.cat.Len() == 0 {
		return o.fail(run, fmt.Errorf("%w: %v", domain.ErrAggregationFailure, domain.ErrEmptyCatalog))
	}

	run.State = domain.StateAnalyzing

	// Planner: fail-open on selection, fail-closed on validity.
	planStart := time.Now()
	plan := o.planner.Plan(ctx, o.cat, documentSummary)
	planOutcome := domain.OutcomeOK
	if plan.FellBack {
		planOutcome = domain.OutcomeFallback
	}
	o.recordStage(run, domain.TraceEntry{
		Stage:         domain.StagePlanner,
		DurationNanos: time.Since(planStart).Nanoseconds(),
		Outcome:       planOutcome,
	})
	if n := len(plan.Discarded); n > 0 && o.opts.Metrics != nil {
		o.opts.Metrics.RecordHallucinations(n)
	}
	o.event(run, domain.StagePlanner, "", planOutcome, plan.Reasoning)

	selected := o.selectionSet(ctx, plan)
	o.logger.Info("planner selected requirements",
		"run_id", run.ID, "selected", len(selected), "discarded", len(plan.Discarded), "fallback", plan.FellBack)

	// Fan-out: each requirement's pipeline is independent and owns one slot.
	slots := make([]requirementResult, len(selected))
	sem := make(chan struct{}, o.opts.Workers)
	var wg sync.WaitGroup
	for i, id := range selected {
		req, ok := o.cat.Get(id)
		if !ok {
			// selectionSet only emits catalog ids; a miss here is a bug.
			return o.fail(run, fmt.Errorf("%w: requirement %s vanished from catalog", domain.ErrAggregationFailure, id))
		}
		wg.Add(1)
		go func(slot int, req domain.Requirement) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			slots[slot] = o.evaluateRequirement(ctx, run, req)
		}(i, req)
	}
	wg.Wait()

	// Fan-in: deterministic ordering regardless of completion order.
	assessments := make([]domain.VerifiedAssessment, 0, len(slots))
	for _, res := range slots {
		assessments = append(assessments, res.assessment)
		run.Trace = append(run.Trace, res.trace...)
	}
	sort.Slice(assessments, func(i, j int) bool {
		return assessments[i].RequirementID < assessments[j].RequirementID
	})
	sortTrace(run.Trace)

	statuses := make([]domain.Status, 0, len(assessments))
	for _, a := range assessments {
		statuses = append(statuses, a.Status)
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordAssessment(string(a.Status))
		}
	}

	run.Assessments = assessments
	run.Verdict = AggregateVerdict(statuses)
	o.recordStage(run, domain.TraceEntry{Stage: domain.StageAggregate, Outcome: domain.OutcomeOK})

	// Freeze: strictly sequential, after every slot is filled.
	sealStart := time.Now()
	run.State = domain.StateCompleted
	run.CompletedAt = time.Now().UTC()
	if err := seal.Seal(run); err != nil {
		return o.fail(run, fmt.Errorf("%w: seal: %v", domain.ErrAggregationFailure, err))
	}
	o.recordStage(run, domain.TraceEntry{
		Stage:         domain.StageSeal,
		DurationNanos: time.Since(sealStart).Nanoseconds(),
		Outcome:       domain.OutcomeOK,
	})
	o.event(run, domain.StageSeal, "", domain.OutcomeOK, run.Fingerprint)

	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordRun(string(run.State), string(run.Verdict))
	}
	o.logger.Info("audit completed",
		"run_id", run.ID, "verdict", run.Verdict, "assessments", len(assessments), "fingerprint", run.Fingerprint)
	return nil
}

// selectionSet merges the plan with policy-forced ids and orders the result
// by requirement id so slot assignment is deterministic.
func (o *Orchestrator) selectionSet(ctx context.Context, plan agents.PlanResult) []string {
	seen := make(map[string]bool, len(plan.RequirementIDs))
	for _, id := range plan.RequirementIDs {
		seen[id] = true
	}
	if o.opts.Selection != nil {
		for _, id := range o.opts.Selection.ForcedSet(ctx, o.cat) {
			if !seen[id] && o.cat.Contains(id) {
				seen[id] = true
				o.logger.Debug("requirement force-included by selection policy", "requirement_id", id)
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// evaluateRequirement runs Retriever → Reasoner → Verifier for one
// requirement. Every fault is absorbed here: the worst case is a fail-safe
// UNKNOWN assessment, never a run failure and never an aborted sibling.
func (o *Orchestrator) evaluateRequirement(ctx context.Context, run *domain.AuditRun, req domain.Requirement) requirementResult {
	ctx, span := o.tracer.Start(ctx, "audit.requirement",
		trace.WithAttributes(attribute.String("requirement.id", req.RequirementID)))
	defer span.End()

	if o.opts.RequirementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequirementTimeout)
		defer cancel()
	}

	var res requirementResult
	record := func(stage, outcome string, start time.Time) {
		entry := domain.TraceEntry{
			Stage:         stage,
			RequirementID: req.RequirementID,
			DurationNanos: time.Since(start).Nanoseconds(),
			Outcome:       outcome,
		}
		res.trace = append(res.trace, entry)
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordStage(stage, outcome, time.Since(start))
			if outcome == domain.OutcomeDiscarded {
				o.opts.Metrics.RecordDiscard(stage)
			}
		}
		o.event(run, stage, req.RequirementID, outcome, "")
	}

	// Retrieve. An empty bundle is a valid "no evidence found" outcome.
	retrieveStart := time.Now()
	bundle, err := o.retriever.Retrieve(ctx, req)
	if err != nil {
		record(domain.StageRetriever, domain.OutcomeError, retrieveStart)
		o.logger.Warn("evidence retrieval failed", "requirement_id", req.RequirementID, "error", err)
		bundle = domain.EvidenceBundle{RequirementID: req.RequirementID}
	} else {
		record(domain.StageRetriever, domain.OutcomeOK, retrieveStart)
	}

	// Reason.
	reasonStart := time.Now()
	assessment, outcome := o.reasoner.Assess(ctx, req, bundle)
	if timedOut(ctx) {
		res.assessment = timeoutAssessment(req.RequirementID)
		record(domain.StageReasoner, domain.OutcomeTimeout, reasonStart)
		return res
	}
	record(domain.StageReasoner, outcome, reasonStart)

	// Verify, then trust only the clamped result.
	verifyStart := time.Now()
	verified, outcome := o.verifier.Verify(ctx, assessment, bundle)
	if timedOut(ctx) {
		res.assessment = timeoutAssessment(req.RequirementID)
		record(domain.StageVerifier, domain.OutcomeTimeout, verifyStart)
		return res
	}
	record(domain.StageVerifier, outcome, verifyStart)
	if verified.Clamped && o.opts.Metrics != nil {
		o.opts.Metrics.RecordClamp()
	}

	res.assessment = verified
	return res
}

func (o *Orchestrator) fail(run *domain.AuditRun, err error) error {
	run.State = domain.StateFailed
	run.FailureReason = err.Error()
	run.Verdict = ""
	run.Assessments = nil
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordRun(string(domain.StateFailed), "")
	}
	o.event(run, domain.StageAggregate, "", domain.OutcomeError, err.Error())
	o.logger.Error("audit run failed", "run_id", run.ID, "error", err)
	return err
}

func (o *Orchestrator) recordStage(run *domain.AuditRun, entry domain.TraceEntry) {
	run.Trace = append(run.Trace, entry)
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordStage(entry.Stage, entry.Outcome, time.Duration(entry.DurationNanos))
	}
}

func (o *Orchestrator) event(run *domain.AuditRun, stage, requirementID, outcome, detail string) {
	if o.opts.Events == nil {
		return
	}
	err := o.opts.Events.Record(seal.Event{
		RunID:         run.ID,
		Stage:         stage,
		RequirementID: requirementID,
		Outcome:       outcome,
		Detail:        detail,
	})
	if err != nil {
		o.logger.Warn("event log write failed", "stage", stage, "error", err)
	}
}

func timedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func timeoutAssessment(requirementID string) domain.VerifiedAssessment {
	a := domain.Assessment{
		RequirementID: requirementID,
		Status:        domain.StatusUnknown,
		Confidence:    0,
		Reasoning:     "requirement evaluation timed out",
	}
	return domain.VerifiedAssessment{
		Assessment:         a,
		OriginalStatus:     a.Status,
		OriginalConfidence: a.Confidence,
		Approved:           true,
	}
}

// sortTrace orders trace entries deterministically: run-level stages in
// pipeline order first, then per-requirement entries by requirement id and
// stage order.
func sortTrace(entries []domain.TraceEntry) {
	rank := map[string]int{
		domain.StagePlanner:   0,
		domain.StageRetriever: 1,
		domain.StageReasoner:  2,
		domain.StageVerifier:  3,
		domain.StageAggregate: 4,
		domain.StageSeal:      5,
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		aGlobal, bGlobal := a.RequirementID == "", b.RequirementID == ""
		if aGlobal != bGlobal {
			// Global planner entry first, global aggregate/seal last.
			if aGlobal {
				return a.Stage == domain.StagePlanner
			}
			return b.Stage != domain.StagePlanner
		}
		if a.RequirementID != b.RequirementID {
			return a.RequirementID < b.RequirementID
		}
		return rank[a.Stage] < rank[b.Stage]
	})
}
