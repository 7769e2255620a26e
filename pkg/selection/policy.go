// Package selection decides which requirements are force-included in an
// evaluation regardless of planner output. The rule is expressed as a Rego
// policy evaluated with the embedded OPA SDK, so deployments can tighten or
// loosen mandatory coverage without a rebuild. Policy failure degrades to
// the catalog's Mandatory flag alone, never to an empty forced set.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/domain"
)

// DefaultModule force-includes mandatory requirements and every HIGH-risk
// requirement.
const DefaultModule = `package clausewise.selection

import rego.v1

default force := false

force if input.mandatory

force if input.risk_level == "HIGH"
`

const entrypoint = "data.clausewise.selection.force"

// Policy evaluates the force-include rule per requirement.
type Policy struct {
	prepared rego.PreparedEvalQuery
	logger   *slog.Logger
}

// NewPolicy compiles the Rego module and prepares the evaluation query.
// An empty module selects DefaultModule. Compilation errors surface at
// construction so a broken policy is caught before any audit starts.
func NewPolicy(ctx context.Context, module string, logger *slog.Logger) (*Policy, error) {
	if module == "" {
		module = DefaultModule
	}
	if logger == nil {
		logger = slog.Default()
	}

	parsed, err := ast.ParseModuleWithOpts("selection.rego", module, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("selection: parse rego module: %w", err)
	}

	prepared, err := rego.New(
		rego.Query(entrypoint),
		rego.ParsedModule(parsed),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("selection: compile rego module: %w", err)
	}

	return &Policy{prepared: prepared, logger: logger}, nil
}

// Forced evaluates the policy for one requirement.
func (p *Policy) Forced(ctx context.Context, req domain.Requirement) (bool, error) {
	input := map[string]any{
		"requirement_id": req.RequirementID,
		"framework_id":   req.FrameworkID,
		"section_ref":    req.SectionRef,
		"risk_level":     string(req.RiskLevel),
		"mandatory":      req.Mandatory,
	}
	results, err := p.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("selection: evaluate %s: %w", req.RequirementID, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, errors.New("selection: policy produced no result")
	}
	forced, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("selection: unexpected result type %T", results[0].Expressions[0].Value)
	}
	return forced, nil
}

// ForcedSet returns the ids the policy force-includes, ordered by id. On
// evaluation failure it falls back to the catalog's Mandatory flags and
// logs the degradation.
func (p *Policy) ForcedSet(ctx context.Context, cat *catalog.Snapshot) []string {
	var forced []string
	for _, req := range cat.Requirements() {
		ok, err := p.Forced(ctx, req)
		if err != nil {
			p.logger.Warn("selection policy failed, falling back to mandatory flags", "error", err)
			return cat.Mandatory()
		}
		if ok {
			forced = append(forced, req.RequirementID)
		}
	}
	return forced
}
