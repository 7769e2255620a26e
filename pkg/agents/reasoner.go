package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/llm"
	"github.com/clausewise/clausewise/pkg/seal"
)

// ReasonerOptions tune the assessment policy.
type ReasonerOptions struct {
	// QuoteSimilarity is the minimum token overlap accepted for near-verbatim
	// quotes. Zero selects the default (0.8).
	QuoteSimilarity float64
	// NegativeEvidence lets the model argue a reduced-confidence
	// NON_COMPLIANT finding from absence of evidence. When off (default),
	// empty evidence short-circuits to UNKNOWN without a model call.
	NegativeEvidence bool
	// MaxNegativeConfidence caps confidence for negative-evidence findings.
	MaxNegativeConfidence float64
	Logger                *slog.Logger
}

// Reasoner produces a structured compliance judgment for one requirement
// from its evidence bundle.
type Reasoner struct {
	gen  llm.Generator
	opts ReasonerOptions
}

// NewReasoner creates a reasoner backed by the given generator.
func NewReasoner(gen llm.Generator, opts ReasonerOptions) *Reasoner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxNegativeConfidence <= 0 || opts.MaxNegativeConfidence > 1 {
		opts.MaxNegativeConfidence = 0.4
	}
	return &Reasoner{gen: gen, opts: opts}
}

// Assess judges the requirement against the bundle. The returned outcome is
// one of the domain trace outcomes; failures never escape, they degrade to
// the fail-safe UNKNOWN assessment. Compliance is never fabricated from
// absence of evidence.
func (r *Reasoner) Assess(ctx context.Context, req domain.Requirement, bundle domain.EvidenceBundle) (domain.Assessment, string) {
	if bundle.Empty() && !r.opts.NegativeEvidence {
		return domain.Assessment{
			RequirementID: req.RequirementID,
			Status:        domain.StatusUnknown,
			Confidence:    0,
			Reasoning:     "no evidence found in document for this requirement",
		}, domain.OutcomeOK
	}

	raw, err := r.gen.Generate(ctx, r.prompt(req, bundle))
	if err != nil {
		r.opts.Logger.Error("reasoner failed", "requirement_id", req.RequirementID, "error", err)
		return failSafe(req.RequirementID, "assessment failed: "+err.Error()), domain.OutcomeError
	}

	out, err := decodeReasonerOutput(raw, req, bundle, r.opts.QuoteSimilarity)
	if err != nil {
		r.opts.Logger.Warn("reasoner output discarded", "requirement_id", req.RequirementID, "error", err)
		return failSafe(req.RequirementID, "assessment discarded: output failed validation"), domain.OutcomeDiscarded
	}

	assessment := domain.Assessment{
		RequirementID: req.RequirementID,
		Status:        domain.Status(out.Status),
		Confidence:    out.Confidence,
		Reasoning:     out.Reasoning,
	}
	if bundle.Empty() && assessment.Confidence > r.opts.MaxNegativeConfidence {
		assessment.Confidence = r.opts.MaxNegativeConfidence
	}
	if quote := strings.TrimSpace(out.EvidenceQuote); quote != "" {
		// Hash at citation time so later edits to this one quote are
		// locatable during tamper checks.
		assessment.EvidenceQuotes = append(assessment.EvidenceQuotes, domain.EvidenceQuote{
			Quote:       quote,
			PageNumbers: out.PageNumbers,
			QuoteHash:   seal.HashText(quote),
		})
	}
	return assessment, domain.OutcomeOK
}

func failSafe(requirementID, reasoning string) domain.Assessment {
	return domain.Assessment{
		RequirementID: requirementID,
		Status:        domain.StatusUnknown,
		Confidence:    0,
		Reasoning:     reasoning,
	}
}

func (r *Reasoner) prompt(req domain.Requirement, bundle domain.EvidenceBundle) llm.Prompt {
	var evidence strings.Builder
	if bundle.Empty() {
		evidence.WriteString("(no evidence retrieved from the document)\n")
	}
	for i, chunk := range bundle.Chunks {
		fmt.Fprintf(&evidence, "Document Chunk %d (pages %v):\n%s\n\n", i+1, chunk.PageNumbers, chunk.Text)
	}

	return llm.Prompt{
		System: "You are a legal compliance assessment agent. Determine if a " +
			"privacy policy explicitly addresses a statutory requirement. Rules:\n" +
			"1. Only mark COMPLIANT if explicitly stated\n" +
			"2. Mark PARTIAL if mentioned but vague\n" +
			"3. Mark NON_COMPLIANT if contradicted or missing\n" +
			"4. Mark UNKNOWN if insufficient evidence\n" +
			"5. You MUST provide a direct quote as evidence or mark UNKNOWN\n" +
			"6. Do not infer or assume compliance",
		User: fmt.Sprintf("Requirement (%s, risk %s): %s\n\nEvidence from Document:\n%s",
			req.SectionRef, req.RiskLevel, req.Text, evidence.String()),
		SchemaHint: fmt.Sprintf(`{"requirement_id": %q, "status": "COMPLIANT|PARTIAL|NON_COMPLIANT|UNKNOWN", "confidence": 0.0, "evidence_quote": "direct quote or empty", "reasoning": "explicit justification", "page_numbers": [1]}`, req.RequirementID),
	}
}
