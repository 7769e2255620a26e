package domain

// RiskLevel classifies the regulatory weight of a requirement.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether the risk level is one of the known values.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Requirement is a single statutory obligation inside a framework.
// Requirements are seeded once and never mutated; every RequirementID that
// appears anywhere else in the system must resolve against the catalog.
type Requirement struct {
	RequirementID string    `json:"requirement_id" yaml:"requirement_id"`
	FrameworkID   string    `json:"framework_id" yaml:"framework_id"`
	SectionRef    string    `json:"section_ref" yaml:"section_ref"`
	Title         string    `json:"title" yaml:"title"`
	Text          string    `json:"text" yaml:"text"`
	RiskLevel     RiskLevel `json:"risk_level" yaml:"risk_level"`
	// Mandatory requirements are force-included in every evaluation of the
	// framework, regardless of what the planner selects.
	Mandatory bool `json:"mandatory" yaml:"mandatory"`
}

// Keywords derives retrieval keywords from the requirement title.
func (r Requirement) Keywords() []string {
	return tokenize(r.Title)
}

// Status is the compliance outcome for a single requirement.
type Status string

const (
	StatusCompliant    Status = "COMPLIANT"
	StatusPartial      Status = "PARTIAL"
	StatusNonCompliant Status = "NON_COMPLIANT"
	StatusUnknown      Status = "UNKNOWN"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusCompliant, StatusPartial, StatusNonCompliant, StatusUnknown:
		return true
	}
	return false
}

// ComplianceRank orders statuses from least to most compliant. The verifier
// may only move an assessment to a lower rank: toward NON_COMPLIANT or
// UNKNOWN, never toward COMPLIANT.
func (s Status) ComplianceRank() int {
	switch s {
	case StatusCompliant:
		return 3
	case StatusPartial:
		return 2
	case StatusUnknown:
		return 1
	case StatusNonCompliant:
		return 0
	}
	return -1
}

// Verdict is the document-level aggregate outcome.
type Verdict string

const (
	VerdictRed    Verdict = "RED"
	VerdictYellow Verdict = "YELLOW"
	VerdictGreen  Verdict = "GREEN"
)
