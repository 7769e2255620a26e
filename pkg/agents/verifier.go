package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/llm"
)

// Verifier independently re-checks a reasoner assessment. It may only
// tighten the judgment; the clamp below is the core safety invariant of the
// whole pipeline and is applied to every output regardless of what the
// verification model computed.
type Verifier struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewVerifier creates a verifier backed by the given generator.
func NewVerifier(gen llm.Generator, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{gen: gen, logger: logger}
}

// Verify re-evaluates the assessment. If the verification step itself fails
// the original assessment is approved unchanged: verification availability
// fails open, but a silent upgrade is never possible because every accepted
// output passes through Clamp first.
func (v *Verifier) Verify(ctx context.Context, assessment domain.Assessment, bundle domain.EvidenceBundle) (domain.VerifiedAssessment, string) {
	raw, err := v.gen.Generate(ctx, v.prompt(assessment, bundle))
	if err != nil {
		v.logger.Warn("verifier unavailable, approving original assessment",
			"requirement_id", assessment.RequirementID, "error", err)
		return approveUnchanged(assessment, "verification skipped: "+err.Error()), domain.OutcomeError
	}

	out, err := decodeVerifierOutput(raw, assessment.RequirementID)
	if err != nil {
		v.logger.Warn("verifier output discarded, approving original assessment",
			"requirement_id", assessment.RequirementID, "error", err)
		return approveUnchanged(assessment, "verification skipped: output failed validation"), domain.OutcomeDiscarded
	}

	status, confidence, clamped := Clamp(assessment, domain.Status(out.VerifiedStatus), out.VerifiedConfidence)
	if clamped {
		v.logger.Warn("verifier attempted upgrade, clamped to original",
			"requirement_id", assessment.RequirementID,
			"proposed_status", out.VerifiedStatus,
			"proposed_confidence", out.VerifiedConfidence)
	}

	verified := domain.VerifiedAssessment{
		Assessment:         assessment,
		OriginalStatus:     assessment.Status,
		OriginalConfidence: assessment.Confidence,
		Notes:              out.Notes,
		Approved:           out.Approved,
		Downgraded:         status != assessment.Status || confidence < assessment.Confidence,
		Clamped:            clamped,
	}
	verified.Status = status
	verified.Confidence = confidence
	return verified, domain.OutcomeOK
}

// Clamp enforces the downgrade-only rule as a pure comparison, independent
// of the verification logic. A proposed status more compliant than the
// original, or a higher confidence, is clamped back to the original value.
// Returns the accepted status, confidence and whether clamping occurred.
func Clamp(original domain.Assessment, proposedStatus domain.Status, proposedConfidence float64) (domain.Status, float64, bool) {
	status := proposedStatus
	confidence := proposedConfidence
	clamped := false

	if !status.Valid() || status.ComplianceRank() > original.Status.ComplianceRank() {
		status = original.Status
		clamped = true
	}
	if confidence > original.Confidence || confidence < 0 {
		confidence = original.Confidence
		clamped = true
	}
	return status, confidence, clamped
}

func approveUnchanged(assessment domain.Assessment, notes string) domain.VerifiedAssessment {
	return domain.VerifiedAssessment{
		Assessment:         assessment,
		OriginalStatus:     assessment.Status,
		OriginalConfidence: assessment.Confidence,
		Notes:              notes,
		Approved:           true,
	}
}

func (v *Verifier) prompt(assessment domain.Assessment, bundle domain.EvidenceBundle) llm.Prompt {
	assessmentJSON, _ := json.MarshalIndent(assessment, "", "  ")

	var quotes string
	for _, q := range assessment.EvidenceQuotes {
		quotes += q.Quote + "\n"
	}
	if quotes == "" {
		quotes = "(none)"
	}

	return llm.Prompt{
		System: "You are a verification agent. Check whether an assessment is " +
			"justified by the evidence. You may ONLY downgrade status or " +
			"confidence, never upgrade. If the evidence does not support the " +
			"claim, downgrade to UNKNOWN.",
		User: fmt.Sprintf("Original Assessment:\n%s\n\nEvidence Quotes:\n%s\n\nEvidence chunks retrieved: %d\n\nTask: Verify that the status and confidence are justified.",
			assessmentJSON, quotes, len(bundle.Chunks)),
		SchemaHint: fmt.Sprintf(`{"requirement_id": %q, "verified_status": "COMPLIANT|PARTIAL|NON_COMPLIANT|UNKNOWN", "verified_confidence": 0.0, "verification_notes": "explanation if downgraded", "approved": true}`, assessment.RequirementID),
	}
}
