package domain

import (
	"strings"
	"time"
	"unicode"
)

// AuditState tracks the lifecycle of an audit run.
type AuditState string

const (
	StatePending    AuditState = "PENDING"
	StateExtracting AuditState = "EXTRACTING"
	StateAnalyzing  AuditState = "ANALYZING"
	StateCompleted  AuditState = "COMPLETED"
	StateFailed     AuditState = "FAILED"
)

// Terminal reports whether the run can no longer change state.
func (s AuditState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// EvidenceChunk is a retrieved span of source-document text. Chunks are
// produced per query and live only for the duration of the run unless a
// quote from them is embedded in the final report.
type EvidenceChunk struct {
	Text        string  `json:"text"`
	PageNumbers []int   `json:"page_numbers"`
	Score       float64 `json:"score"`
	// SourceHash fingerprints the chunk content at retrieval time and is the
	// deduplication key across retrieval signals.
	SourceHash string `json:"source_hash"`
	// Ordinal is the chunk's position in the original document, used as the
	// deterministic tie-breaker when scores are equal.
	Ordinal int `json:"ordinal"`
}

// EvidenceBundle is everything retrieved for a single requirement. An empty
// bundle is a valid outcome meaning "no evidence found", not a fault.
type EvidenceBundle struct {
	RequirementID string          `json:"requirement_id"`
	Chunks        []EvidenceChunk `json:"chunks"`
}

// Empty reports whether no evidence was retrieved.
func (b EvidenceBundle) Empty() bool { return len(b.Chunks) == 0 }

// EvidenceQuote is a citation inside an assessment. QuoteHash is computed at
// the moment the quote is cited so that editing a single quote after sealing
// is locatable, not just globally detectable.
type EvidenceQuote struct {
	Quote       string `json:"quote"`
	PageNumbers []int  `json:"page_numbers"`
	QuoteHash   string `json:"quote_hash"`
}

// Assessment is the reasoner's judgment for one requirement.
type Assessment struct {
	RequirementID  string          `json:"requirement_id"`
	Status         Status          `json:"status"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning"`
	EvidenceQuotes []EvidenceQuote `json:"evidence_quotes"`
}

// VerifiedAssessment is an assessment after the verification stage. Status
// and Confidence are never more compliant than the original values.
type VerifiedAssessment struct {
	Assessment
	OriginalStatus     Status  `json:"original_status"`
	OriginalConfidence float64 `json:"original_confidence"`
	Notes              string  `json:"notes,omitempty"`
	Approved           bool    `json:"approved"`
	Downgraded         bool    `json:"downgraded"`
	// Clamped records that the verifier proposed an upgrade and was forced
	// back to the original values.
	Clamped bool `json:"clamped,omitempty"`
}

// TraceEntry is one record in the append-only execution trace.
type TraceEntry struct {
	Stage         string `json:"stage"`
	RequirementID string `json:"requirement_id,omitempty"`
	DurationNanos int64  `json:"duration_nanos"`
	Outcome       string `json:"outcome"`
}

// Trace outcomes recorded by the pipeline stages.
const (
	OutcomeOK        = "ok"
	OutcomeFallback  = "fallback"
	OutcomeDiscarded = "discarded"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Pipeline stage names used in trace entries and telemetry.
const (
	StagePlanner   = "planner"
	StageRetriever = "retriever"
	StageReasoner  = "reasoner"
	StageVerifier  = "verifier"
	StageAggregate = "aggregate"
	StageSeal      = "seal"
)

// AuditRun aggregates one document's evaluation. Once State is COMPLETED and
// Fingerprint is set the run is frozen; any later divergence between the
// recomputed and stored fingerprint signals tampering.
type AuditRun struct {
	ID            string               `json:"id"`
	PolicyID      string               `json:"policy_id"`
	FrameworkID   string               `json:"framework_id"`
	State         AuditState           `json:"state"`
	Assessments   []VerifiedAssessment `json:"assessments"`
	Verdict       Verdict              `json:"verdict,omitempty"`
	Trace         []TraceEntry         `json:"trace"`
	Fingerprint   string               `json:"fingerprint,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	CompletedAt   time.Time            `json:"completed_at,omitempty"`
}

// Frozen reports whether the run has been sealed.
func (r *AuditRun) Frozen() bool {
	return r.State == StateCompleted && r.Fingerprint != ""
}

// Clone returns a deep copy of the run that can be read or mutated
// independently of the original.
func (r *AuditRun) Clone() *AuditRun {
	out := *r
	if r.Assessments != nil {
		out.Assessments = make([]VerifiedAssessment, len(r.Assessments))
		copy(out.Assessments, r.Assessments)
		for i := range out.Assessments {
			quotes := out.Assessments[i].EvidenceQuotes
			if quotes == nil {
				continue
			}
			copied := make([]EvidenceQuote, len(quotes))
			copy(copied, quotes)
			for j := range copied {
				copied[j].PageNumbers = append([]int(nil), copied[j].PageNumbers...)
			}
			out.Assessments[i].EvidenceQuotes = copied
		}
	}
	if r.Trace != nil {
		out.Trace = append([]TraceEntry(nil), r.Trace...)
	}
	return &out
}

// tokenize lower-cases and splits text on non-letter/digit boundaries,
// dropping short stopword-like tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// Tokenize exposes the shared tokenizer used for keywords and quote
// traceability checks.
func Tokenize(text string) []string { return tokenize(text) }
