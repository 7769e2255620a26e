// Package seal freezes completed audit runs behind a cryptographic
// fingerprint and detects tampering on later reads. Evidence quotes are
// hashed individually at citation time, so editing a single quote is
// locatable; the run fingerprint covers the ordered assessments, the verdict
// and every quote hash, so any other mutation is globally detectable.
package seal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/clausewise/clausewise/pkg/domain"
)

// HashText returns the hex SHA-256 of the text. Empty text hashes to the
// empty string so optional quotes stay optional in the sealed form.
func HashText(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// sealedQuote and sealedAssessment are fixed-field structs: json.Marshal
// emits struct fields in declaration order, which makes the serialization
// canonical without sorting maps.
type sealedQuote struct {
	Quote       string `json:"quote"`
	PageNumbers []int  `json:"page_numbers"`
	QuoteHash   string `json:"quote_hash"`
}

type sealedAssessment struct {
	RequirementID string        `json:"requirement_id"`
	Status        string        `json:"status"`
	Confidence    float64       `json:"confidence"`
	Reasoning     string        `json:"reasoning"`
	Quotes        []sealedQuote `json:"quotes"`
}

type sealedContent struct {
	PolicyID    string             `json:"policy_id"`
	FrameworkID string             `json:"framework_id"`
	Verdict     string             `json:"verdict"`
	Assessments []sealedAssessment `json:"assessments"`
}

// Fingerprint computes the content hash over the run's frozen material. The
// assessments must already be in their final, deterministic order.
func Fingerprint(run *domain.AuditRun) (string, error) {
	content := sealedContent{
		PolicyID:    run.PolicyID,
		FrameworkID: run.FrameworkID,
		Verdict:     string(run.Verdict),
	}
	for _, a := range run.Assessments {
		sa := sealedAssessment{
			RequirementID: a.RequirementID,
			Status:        string(a.Status),
			Confidence:    a.Confidence,
			Reasoning:     a.Reasoning,
		}
		for _, q := range a.EvidenceQuotes {
			sa.Quotes = append(sa.Quotes, sealedQuote(q))
		}
		content.Assessments = append(content.Assessments, sa)
	}

	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("seal: marshal content: %w", err)
	}
	return HashText(string(data)), nil
}

// Seal computes and stores the fingerprint on a completed run. Sealing an
// already-frozen run is refused.
func Seal(run *domain.AuditRun) error {
	if run.Frozen() {
		return domain.ErrRunFrozen
	}
	fp, err := Fingerprint(run)
	if err != nil {
		return err
	}
	run.Fingerprint = fp
	return nil
}

// Verify recomputes the fingerprint of a stored run and compares it with the
// sealed value. Quote hashes are checked first so that a single edited quote
// is reported against its requirement rather than as an anonymous mismatch.
// A mismatch is surfaced as ErrTamperDetected, never silently accepted.
func Verify(run *domain.AuditRun) error {
	if !run.Frozen() {
		return nil
	}
	for _, a := range run.Assessments {
		for _, q := range a.EvidenceQuotes {
			if HashText(q.Quote) != q.QuoteHash {
				return domain.NewTamperError(run.ID, a.RequirementID)
			}
		}
	}
	fp, err := Fingerprint(run)
	if err != nil {
		return fmt.Errorf("seal: verify: %w", err)
	}
	if fp != run.Fingerprint {
		return domain.NewTamperError(run.ID, "")
	}
	return nil
}
