package selection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clausewise/clausewise/pkg/catalog"
	"github.com/clausewise/clausewise/pkg/domain"
)

func policyCatalog(t *testing.T) *catalog.Snapshot {
	t.Helper()
	cat, err := catalog.NewSnapshot(
		catalog.Framework{ID: "GDPR", Name: "GDPR", Version: "2016/679"},
		[]domain.Requirement{
			{RequirementID: "REQ-001", RiskLevel: domain.RiskHigh},
			{RequirementID: "REQ-002", RiskLevel: domain.RiskLow, Mandatory: true},
			{RequirementID: "REQ-003", RiskLevel: domain.RiskMedium},
		},
	)
	require.NoError(t, err)
	return cat
}

func TestDefaultModuleForcesMandatoryAndHighRisk(t *testing.T) {
	ctx := context.Background()
	p, err := NewPolicy(ctx, "", nil)
	require.NoError(t, err)

	forced := p.ForcedSet(ctx, policyCatalog(t))
	assert.Equal(t, []string{"REQ-001", "REQ-002"}, forced)
}

func TestForcedPerRequirement(t *testing.T) {
	ctx := context.Background()
	p, err := NewPolicy(ctx, "", nil)
	require.NoError(t, err)

	tests := []struct {
		req  domain.Requirement
		want bool
	}{
		{domain.Requirement{RequirementID: "A", RiskLevel: domain.RiskHigh}, true},
		{domain.Requirement{RequirementID: "B", RiskLevel: domain.RiskLow, Mandatory: true}, true},
		{domain.Requirement{RequirementID: "C", RiskLevel: domain.RiskMedium}, false},
	}
	for _, tt := range tests {
		got, err := p.Forced(ctx, tt.req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "requirement %s", tt.req.RequirementID)
	}
}

func TestCustomModule(t *testing.T) {
	ctx := context.Background()
	module := `package clausewise.selection

import rego.v1

default force := false

force if input.section_ref == "Art. 17"
`
	p, err := NewPolicy(ctx, module, nil)
	require.NoError(t, err)

	forced, err := p.Forced(ctx, domain.Requirement{RequirementID: "A", SectionRef: "Art. 17", RiskLevel: domain.RiskLow})
	require.NoError(t, err)
	assert.True(t, forced)

	forced, err = p.Forced(ctx, domain.Requirement{RequirementID: "B", SectionRef: "Art. 5", RiskLevel: domain.RiskHigh})
	require.NoError(t, err)
	assert.False(t, forced)
}

func TestBrokenModuleRejectedAtConstruction(t *testing.T) {
	_, err := NewPolicy(context.Background(), "package broken\n\nforce if {", nil)
	assert.Error(t, err)
}
