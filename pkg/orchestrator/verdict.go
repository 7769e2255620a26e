package orchestrator

import (
	"strings"

	"github.com/clausewise/clausewise/pkg/domain"
)

// AggregateVerdict derives the document-level verdict from the final
// assessment statuses. This is pure code, never delegated to a model, and
// depends only on the status multiset:
//
//  1. Any NON_COMPLIANT  => RED
//  2. Else any PARTIAL or UNKNOWN => YELLOW
//  3. Else (all COMPLIANT) => GREEN
//
// Matching is case-insensitive over the whole set.
func AggregateVerdict(statuses []domain.Status) domain.Verdict {
	anyCaution := false
	for _, s := range statuses {
		switch domain.Status(strings.ToUpper(string(s))) {
		case domain.StatusNonCompliant:
			return domain.VerdictRed
		case domain.StatusPartial, domain.StatusUnknown:
			anyCaution = true
		}
	}
	if anyCaution {
		return domain.VerdictYellow
	}
	return domain.VerdictGreen
}
