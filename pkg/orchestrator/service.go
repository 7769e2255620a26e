package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clausewise/clausewise/pkg/agents"
	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/config"
	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/evidence"
	"github.com/clausewise/clausewise/pkg/llm"
	"github.com/clausewise/clausewise/pkg/seal"
	"github.com/clausewise/clausewise/pkg/storage"
	"github.com/clausewise/clausewise/pkg/telemetry"
)

// IndexProvider returns the evidence index for a policy document. Text
// extraction and embedding happen behind it and are complete by the time it
// returns; the pipeline only queries.
type IndexProvider func(ctx context.Context, policyID string) (evidence.Index, error)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Catalog   *catalog.Snapshot
	Generator llm.Generator
	Store     storage.AuditStore
	IndexFor  IndexProvider
	Config    config.Config
	Selection SelectionPolicy
	Metrics   *telemetry.Metrics
	Events    *seal.EventLog
	Logger    *slog.Logger
}

// Service is the exposed evaluation surface. The out-of-scope HTTP layer
// maps directly onto its three methods.
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService validates the wiring and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil || cfg.Catalog.Len() == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("orchestrator: generator is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if cfg.IndexFor == nil {
		return nil, fmt.Errorf("orchestrator: index provider is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}, nil
}

// StartEvaluation creates a PENDING run, persists it and advances it in the
// background. Callers poll Status and fetch the sealed result with Report.
// The returned run is a snapshot; the background goroutine owns the live run.
func (s *Service) StartEvaluation(ctx context.Context, policyID, frameworkID string) (*domain.AuditRun, error) {
	run, err := s.newRun(ctx, policyID, frameworkID)
	if err != nil {
		return nil, err
	}
	snapshot := run.Clone()
	go func() {
		// Detached from the caller's request context; the run has its own
		// lifecycle once accepted.
		if _, err := s.advance(context.Background(), run); err != nil {
			s.logger.Error("background evaluation failed", "policy_id", policyID, "error", err)
		}
	}()
	return snapshot, nil
}

// Evaluate runs the whole pipeline synchronously and returns the terminal
// run.
func (s *Service) Evaluate(ctx context.Context, policyID, frameworkID string) (*domain.AuditRun, error) {
	run, err := s.newRun(ctx, policyID, frameworkID)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, run)
}

// Status reports the run state for a policy. Polling always returns a valid
// state, even for FAILED runs.
func (s *Service) Status(ctx context.Context, policyID string) (domain.AuditState, error) {
	run, err := s.cfg.Store.LoadAuditRun(ctx, policyID)
	if err != nil {
		return "", err
	}
	return run.State, nil
}

// Report returns the frozen run after verifying its fingerprint. A tampered
// run surfaces ErrTamperDetected; altered data is never returned. A FAILED
// run is returned with its failure reason and no verdict.
func (s *Service) Report(ctx context.Context, policyID string) (*domain.AuditRun, error) {
	run, err := s.cfg.Store.LoadAuditRun(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if run.State == domain.StateFailed {
		return run, nil
	}
	if !run.Frozen() {
		return nil, fmt.Errorf("%w: policy %s is %s", domain.ErrRunNotCompleted, policyID, run.State)
	}
	if err := seal.Verify(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) newRun(ctx context.Context, policyID, frameworkID string) (*domain.AuditRun, error) {
	if fw := s.cfg.Catalog.Framework().ID; frameworkID != fw {
		return nil, fmt.Errorf("orchestrator: framework %q not seeded (have %q)", frameworkID, fw)
	}
	run := &domain.AuditRun{
		ID:          uuid.NewString(),
		PolicyID:    policyID,
		FrameworkID: frameworkID,
		State:       domain.StatePending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.cfg.Store.SaveAuditRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// advance moves a run through EXTRACTING and ANALYZING to a terminal state,
// persisting at every transition so Status polling reflects progress.
func (s *Service) advance(ctx context.Context, run *domain.AuditRun) (*domain.AuditRun, error) {
	run.State = domain.StateExtracting
	if err := s.cfg.Store.SaveAuditRun(ctx, run); err != nil {
		return nil, err
	}

	index, err := s.cfg.IndexFor(ctx, run.PolicyID)
	if err != nil {
		run.State = domain.StateFailed
		run.FailureReason = "document indexing failed: " + err.Error()
		_ = s.cfg.Store.SaveAuditRun(ctx, run)
		return run, fmt.Errorf("%w: index policy %s: %v", domain.ErrAggregationFailure, run.PolicyID, err)
	}

	run.State = domain.StateAnalyzing
	if err := s.cfg.Store.SaveAuditRun(ctx, run); err != nil {
		return nil, err
	}

	orch := s.buildOrchestrator(index)
	evalErr := orch.Evaluate(ctx, run, "")

	// Atomic save-on-completion: the terminal run (sealed or failed) is
	// written in one operation.
	if saveErr := s.cfg.Store.SaveAuditRun(ctx, run); saveErr != nil {
		return nil, saveErr
	}
	if evalErr != nil {
		return run, evalErr
	}
	return run, nil
}

func (s *Service) buildOrchestrator(index evidence.Index) *Orchestrator {
	cfg := s.cfg.Config

	retriever := evidence.NewRetriever(index, evidence.RetrieverOptions{
		TopK:           cfg.Retrieval.TopK,
		LexicalWeight:  cfg.Retrieval.LexicalWeight,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		Logger:         s.logger,
	})
	planner := agents.NewPlanner(s.cfg.Generator, s.logger)
	reasoner := agents.NewReasoner(s.cfg.Generator, agents.ReasonerOptions{
		QuoteSimilarity:  cfg.Pipeline.QuoteSimilarity,
		NegativeEvidence: cfg.Pipeline.NegativeEvidence,
		Logger:           s.logger,
	})
	verifier := agents.NewVerifier(s.cfg.Generator, s.logger)

	var sel SelectionPolicy
	if cfg.Pipeline.ForceMandatory {
		sel = s.cfg.Selection
	}
	return New(s.cfg.Catalog, planner, retriever, reasoner, verifier, Options{
		Workers:            cfg.Pipeline.Workers,
		RequirementTimeout: cfg.Pipeline.RequirementTimeout,
		Selection:          sel,
		Metrics:            s.cfg.Metrics,
		Events:             s.cfg.Events,
		Logger:             s.logger,
	})
}
