package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/llm"
)

// PlanResult is the validated planner outcome. Every id is guaranteed to
// exist in the catalog the plan was made against.
type PlanResult struct {
	RequirementIDs []string
	Reasoning      string
	// FellBack is set when the planner step failed and the full catalog was
	// selected instead (fail-open on selection).
	FellBack bool
	// Discarded lists hallucinated ids the model invented. They are dropped
	// before the result ever leaves this package (fail-closed on validity).
	Discarded []string
}

// Planner selects the subset of requirements applicable to a document.
type Planner struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewPlanner creates a planner backed by the given generator.
func NewPlanner(gen llm.Generator, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{gen: gen, logger: logger}
}

// Plan asks the model which requirements apply, given an optional document
// summary. The model can only select from the catalog; ids it invents are
// dropped and logged. If the step itself breaks, the result falls back to
// the entire catalog so that a planner outage can never narrow coverage.
func (p *Planner) Plan(ctx context.Context, cat *catalog.Snapshot, documentSummary string) PlanResult {
	raw, err := p.gen.Generate(ctx, p.prompt(cat, documentSummary))
	if err != nil {
		p.logger.Warn("planner failed, evaluating full catalog", "error", err)
		return p.fallback(cat)
	}

	out, err := decodePlannerOutput(raw)
	if err != nil {
		p.logger.Warn("planner output invalid, evaluating full catalog", "error", err)
		return p.fallback(cat)
	}

	result := PlanResult{Reasoning: out.Reasoning}
	seen := make(map[string]bool, len(out.RequirementIDs))
	for _, id := range out.RequirementIDs {
		id = strings.TrimSpace(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		if !cat.Contains(id) {
			result.Discarded = append(result.Discarded, id)
			p.logger.Warn("planner hallucinated requirement id, discarding", "requirement_id", id)
			continue
		}
		result.RequirementIDs = append(result.RequirementIDs, id)
	}

	if len(result.RequirementIDs) == 0 {
		p.logger.Warn("planner selected only invalid ids, evaluating full catalog", "discarded", len(result.Discarded))
		fb := p.fallback(cat)
		fb.Discarded = result.Discarded
		return fb
	}
	return result
}

func (p *Planner) fallback(cat *catalog.Snapshot) PlanResult {
	ids := make([]string, 0, cat.Len())
	for _, req := range cat.Requirements() {
		ids = append(ids, req.RequirementID)
	}
	return PlanResult{
		RequirementIDs: ids,
		Reasoning:      "fallback: evaluating all requirements due to planner error",
		FellBack:       true,
	}
}

func (p *Planner) prompt(cat *catalog.Snapshot, documentSummary string) llm.Prompt {
	var list strings.Builder
	for _, req := range cat.Requirements() {
		fmt.Fprintf(&list, "- %s: %s\n", req.RequirementID, req.Title)
	}

	fw := cat.Framework()
	user := fmt.Sprintf("Available Requirements:\n%s\n", list.String())
	if documentSummary != "" {
		user += fmt.Sprintf("\nDocument Summary:\n%s\n", documentSummary)
	}
	user += "\nTask: Select ALL requirement IDs that should be evaluated for this privacy policy document."

	return llm.Prompt{
		System: fmt.Sprintf(
			"You are a compliance planning agent. Identify which regulatory "+
				"requirements are relevant for evaluating a privacy policy document "+
				"against %s %s. You must ONLY select from the provided requirement "+
				"IDs. You cannot invent new requirements.", fw.Name, fw.Version),
		User:       user,
		SchemaHint: `{"requirement_ids": ["REQ-001", "REQ-002"], "reasoning": "brief explanation"}`,
	}
}
