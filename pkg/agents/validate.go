package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clausewise/clausewise/pkg/domain"
)

// defaultQuoteSimilarity is the minimum token overlap for a quote that is
// not an exact normalized substring of any evidence chunk.
const defaultQuoteSimilarity = 0.8

// plannerOutput is the schema the planner model must produce.
type plannerOutput struct {
	RequirementIDs []string `json:"requirement_ids"`
	Reasoning      string   `json:"reasoning"`
}

// reasonerOutput is the schema the reasoner model must produce.
type reasonerOutput struct {
	RequirementID string   `json:"requirement_id"`
	Status        string   `json:"status"`
	Confidence    float64  `json:"confidence"`
	EvidenceQuote string   `json:"evidence_quote"`
	Reasoning     string   `json:"reasoning"`
	PageNumbers   []int    `json:"page_numbers"`
}

// verifierOutput is the schema the verifier model must produce.
type verifierOutput struct {
	RequirementID      string  `json:"requirement_id"`
	VerifiedStatus     string  `json:"verified_status"`
	VerifiedConfidence float64 `json:"verified_confidence"`
	Notes              string  `json:"verification_notes"`
	Approved           bool    `json:"approved"`
}

func decodePlannerOutput(raw json.RawMessage) (plannerOutput, error) {
	var out plannerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: planner output: %v", domain.ErrValidationFailure, err)
	}
	if len(out.RequirementIDs) == 0 {
		return out, fmt.Errorf("%w: planner selected no requirements", domain.ErrValidationFailure)
	}
	return out, nil
}

// decodeReasonerOutput enforces the fixed field set, enumerated status,
// confidence range and quote traceability. Any violation discards the whole
// instance; partial salvage would let an invalid status or an invented quote
// leak into the report.
func decodeReasonerOutput(raw json.RawMessage, req domain.Requirement, bundle domain.EvidenceBundle, similarity float64) (reasonerOutput, error) {
	var out reasonerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: reasoner output: %v", domain.ErrValidationFailure, err)
	}
	if out.RequirementID != req.RequirementID {
		return out, fmt.Errorf("%w: reasoner answered for %q, expected %q", domain.ErrValidationFailure, out.RequirementID, req.RequirementID)
	}
	status := domain.Status(strings.ToUpper(strings.TrimSpace(out.Status)))
	if !status.Valid() {
		return out, fmt.Errorf("%w: unknown status %q", domain.ErrValidationFailure, out.Status)
	}
	out.Status = string(status)
	if out.Confidence < 0 || out.Confidence > 1 {
		return out, fmt.Errorf("%w: confidence %v out of range", domain.ErrValidationFailure, out.Confidence)
	}
	if strings.TrimSpace(out.Reasoning) == "" {
		return out, fmt.Errorf("%w: reasoning is required", domain.ErrValidationFailure)
	}

	quote := strings.TrimSpace(out.EvidenceQuote)
	if quote != "" && strings.EqualFold(quote, "null") {
		quote = ""
		out.EvidenceQuote = ""
	}
	if quote != "" && !QuoteTraceable(quote, bundle, similarity) {
		return out, fmt.Errorf("%w: quote not traceable to supplied evidence", domain.ErrValidationFailure)
	}
	// A compliant or partial finding must rest on a citation.
	if quote == "" && (status == domain.StatusCompliant || status == domain.StatusPartial) {
		return out, fmt.Errorf("%w: status %s requires an evidence quote", domain.ErrValidationFailure, status)
	}
	return out, nil
}

func decodeVerifierOutput(raw json.RawMessage, requirementID string) (verifierOutput, error) {
	var out verifierOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: verifier output: %v", domain.ErrValidationFailure, err)
	}
	if out.RequirementID != requirementID {
		return out, fmt.Errorf("%w: verifier answered for %q, expected %q", domain.ErrValidationFailure, out.RequirementID, requirementID)
	}
	status := domain.Status(strings.ToUpper(strings.TrimSpace(out.VerifiedStatus)))
	if !status.Valid() {
		return out, fmt.Errorf("%w: unknown verified status %q", domain.ErrValidationFailure, out.VerifiedStatus)
	}
	out.VerifiedStatus = string(status)
	if out.VerifiedConfidence < 0 || out.VerifiedConfidence > 1 {
		return out, fmt.Errorf("%w: verified confidence %v out of range", domain.ErrValidationFailure, out.VerifiedConfidence)
	}
	return out, nil
}

// QuoteTraceable reports whether the quote appears verbatim (after
// whitespace and case normalization) in any evidence chunk, or overlaps the
// best-matching chunk's tokens at or above the similarity threshold.
func QuoteTraceable(quote string, bundle domain.EvidenceBundle, similarity float64) bool {
	if similarity <= 0 {
		similarity = defaultQuoteSimilarity
	}
	normQuote := normalize(quote)
	if normQuote == "" {
		return false
	}
	quoteTokens := domain.Tokenize(quote)

	for _, chunk := range bundle.Chunks {
		if strings.Contains(normalize(chunk.Text), normQuote) {
			return true
		}
		if len(quoteTokens) > 0 && tokenOverlap(quoteTokens, domain.Tokenize(chunk.Text)) >= similarity {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenOverlap is the fraction of quote tokens present in the chunk.
func tokenOverlap(quote, chunk []string) float64 {
	if len(quote) == 0 {
		return 0
	}
	set := make(map[string]bool, len(chunk))
	for _, t := range chunk {
		set[t] = true
	}
	hits := 0
	for _, t := range quote {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(quote))
}
