package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/domain"
	"github.com/clausewise/clausewise/pkg/llm"
)

func testCatalog(t *testing.T) *catalog.Snapshot {
	t.Helper()
	cat, err := catalog.NewSnapshot(
		catalog.Framework{ID: "GDPR", Name: "General Data Protection Regulation", Version: "2016/679"},
		[]domain.Requirement{
			{RequirementID: "REQ-001", Title: "Data retention limits", RiskLevel: domain.RiskHigh, Mandatory: true},
			{RequirementID: "REQ-002", Title: "Right to erasure", RiskLevel: domain.RiskMedium},
			{RequirementID: "REQ-003", Title: "Consent withdrawal", RiskLevel: domain.RiskLow},
		},
	)
	require.NoError(t, err)
	return cat
}

func TestPlanFiltersHallucinatedIDs(t *testing.T) {
	cat := testCatalog(t)
	gen := llm.GeneratorFunc(func(_ context.Context, _ llm.Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{
			"requirement_ids": ["REQ-001", "REQ-999", "REQ-002", "REQ-001"],
			"reasoning": "retention and erasure are covered by the document"
		}`), nil
	})

	p := NewPlanner(gen, nil)
	plan := p.Plan(context.Background(), cat, "")

	assert.Equal(t, []string{"REQ-001", "REQ-002"}, plan.RequirementIDs)
	assert.Equal(t, []string{"REQ-999"}, plan.Discarded)
	assert.False(t, plan.FellBack)
}

func TestPlanFallsBackOnGeneratorError(t *testing.T) {
	cat := testCatalog(t)
	gen := llm.GeneratorFunc(func(_ context.Context, _ llm.Prompt) (json.RawMessage, error) {
		return nil, errors.New("timeout talking to model")
	})

	p := NewPlanner(gen, nil)
	plan := p.Plan(context.Background(), cat, "")

	assert.True(t, plan.FellBack)
	assert.Equal(t, []string{"REQ-001", "REQ-002", "REQ-003"}, plan.RequirementIDs)
}

func TestPlanFallsBackWhenAllIDsInvalid(t *testing.T) {
	cat := testCatalog(t)
	gen := llm.GeneratorFunc(func(_ context.Context, _ llm.Prompt) (json.RawMessage, error) {
		return json.RawMessage(`{"requirement_ids": ["BOGUS-1", "BOGUS-2"], "reasoning": "made up"}`), nil
	})

	p := NewPlanner(gen, nil)
	plan := p.Plan(context.Background(), cat, "")

	assert.True(t, plan.FellBack)
	assert.Equal(t, []string{"REQ-001", "REQ-002", "REQ-003"}, plan.RequirementIDs)
	assert.ElementsMatch(t, []string{"BOGUS-1", "BOGUS-2"}, plan.Discarded)
}

func TestPlanFallsBackOnMalformedOutput(t *testing.T) {
	cat := testCatalog(t)
	gen := llm.GeneratorFunc(func(_ context.Context, _ llm.Prompt) (json.RawMessage, error) {
		return json.RawMessage(`sorry, I cannot produce JSON right now`), nil
	})

	p := NewPlanner(gen, nil)
	plan := p.Plan(context.Background(), cat, "")

	assert.True(t, plan.FellBack)
	assert.Len(t, plan.RequirementIDs, cat.Len())
}

func TestPlanPromptListsOnlyCatalogIDs(t *testing.T) {
	cat := testCatalog(t)
	var captured llm.Prompt
	gen := llm.GeneratorFunc(func(_ context.Context, p llm.Prompt) (json.RawMessage, error) {
		captured = p
		return json.RawMessage(`{"requirement_ids": ["REQ-001"], "reasoning": "r"}`), nil
	})

	NewPlanner(gen, nil).Plan(context.Background(), cat, "a privacy policy about data retention")

	assert.Contains(t, captured.User, "REQ-001")
	assert.Contains(t, captured.User, "REQ-003")
	assert.Contains(t, captured.User, "a privacy policy about data retention")
	assert.Contains(t, captured.System, "General Data Protection Regulation")
}
