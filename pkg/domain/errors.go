package domain

import "errors"

// Fault taxonomy for the pipeline. Per-requirement faults are absorbed
// locally and degrade that requirement to UNKNOWN; only run-wide faults
// propagate to the caller.
var (
	// ErrSelectionFailure marks a planner breakdown. Non-fatal: the
	// orchestrator falls back to evaluating the full catalog.
	ErrSelectionFailure = errors.New("requirement selection failed")
	// ErrValidationFailure marks agent output that failed schema validation
	// or cited untraceable evidence. Non-fatal: replaced with UNKNOWN.
	ErrValidationFailure = errors.New("agent output failed validation")
	// ErrVerificationFailure marks a verifier breakdown. Non-fatal: the
	// unmodified reasoner assessment is approved as-is.
	ErrVerificationFailure = errors.New("verification unavailable")
	// ErrAggregationFailure marks a run-wide fault. Fatal: the run
	// transitions to FAILED and no partial verdict is emitted.
	ErrAggregationFailure = errors.New("verdict aggregation failed")
	// ErrTamperDetected marks a fingerprint mismatch on read. Fatal to that
	// read: stale or altered data is never returned silently.
	ErrTamperDetected = errors.New("audit tamper detected")

	ErrRunNotFound     = errors.New("audit run not found")
	ErrRunNotCompleted = errors.New("audit run has not completed")
	ErrEmptyCatalog    = errors.New("requirement catalog is empty")
	ErrRunFrozen       = errors.New("audit run is frozen and cannot be modified")
)

// DomainError wraps a taxonomy error with a machine-readable code and
// contextual details for callers and logs.
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewTamperError builds a TamperDetected error locating the first divergent
// element when known.
func NewTamperError(runID, requirementID string) *DomainError {
	details := map[string]any{"run_id": runID}
	msg := "stored fingerprint does not match recomputed content"
	if requirementID != "" {
		details["requirement_id"] = requirementID
		msg = "evidence quote hash mismatch for requirement " + requirementID
	}
	return &DomainError{
		Err:     ErrTamperDetected,
		Code:    "TAMPER_DETECTED",
		Message: msg,
		Details: details,
	}
}
