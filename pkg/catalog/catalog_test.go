package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clausewise/clausewise/pkg/domain"
)

func gdpr() Framework {
	return Framework{ID: "GDPR", Name: "General Data Protection Regulation", Version: "2016/679"}
}

func TestNewSnapshotValidation(t *testing.T) {
	t.Run("empty catalog rejected", func(t *testing.T) {
		_, err := NewSnapshot(gdpr(), nil)
		assert.ErrorIs(t, err, domain.ErrEmptyCatalog)
	})

	t.Run("missing framework id rejected", func(t *testing.T) {
		_, err := NewSnapshot(Framework{}, []domain.Requirement{
			{RequirementID: "REQ-001", RiskLevel: domain.RiskLow},
		})
		assert.Error(t, err)
	})

	t.Run("duplicate requirement id rejected", func(t *testing.T) {
		_, err := NewSnapshot(gdpr(), []domain.Requirement{
			{RequirementID: "REQ-001", RiskLevel: domain.RiskLow},
			{RequirementID: "REQ-001", RiskLevel: domain.RiskHigh},
		})
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("invalid risk level rejected", func(t *testing.T) {
		_, err := NewSnapshot(gdpr(), []domain.Requirement{
			{RequirementID: "REQ-001", RiskLevel: "EXTREME"},
		})
		assert.ErrorContains(t, err, "risk level")
	})

	t.Run("framework id inherited", func(t *testing.T) {
		cat, err := NewSnapshot(gdpr(), []domain.Requirement{
			{RequirementID: "REQ-001", RiskLevel: domain.RiskLow},
		})
		require.NoError(t, err)
		req, ok := cat.Get("REQ-001")
		require.True(t, ok)
		assert.Equal(t, "GDPR", req.FrameworkID)
	})
}

func TestSnapshotOrderingAndLookup(t *testing.T) {
	cat, err := NewSnapshot(gdpr(), []domain.Requirement{
		{RequirementID: "REQ-003", RiskLevel: domain.RiskLow},
		{RequirementID: "REQ-001", RiskLevel: domain.RiskHigh, Mandatory: true},
		{RequirementID: "REQ-002", RiskLevel: domain.RiskMedium, Mandatory: true},
	})
	require.NoError(t, err)

	var ids []string
	for _, req := range cat.Requirements() {
		ids = append(ids, req.RequirementID)
	}
	assert.Equal(t, []string{"REQ-001", "REQ-002", "REQ-003"}, ids)

	assert.True(t, cat.Contains("REQ-002"))
	assert.False(t, cat.Contains("REQ-999"))
	assert.Equal(t, []string{"REQ-001", "REQ-002"}, cat.Mandatory())
	assert.Equal(t, 3, cat.Len())
}

func TestSnapshotRequirementsReturnsCopy(t *testing.T) {
	cat, err := NewSnapshot(gdpr(), []domain.Requirement{
		{RequirementID: "REQ-001", Title: "Original", RiskLevel: domain.RiskLow},
	})
	require.NoError(t, err)

	reqs := cat.Requirements()
	reqs[0].Title = "Mutated"

	again, _ := cat.Get("REQ-001")
	assert.Equal(t, "Original", again.Title)
}

func TestLoadSeedYAML(t *testing.T) {
	seed := `
framework:
  id: GDPR
  name: General Data Protection Regulation
  version: "2016/679"
requirements:
  - requirement_id: REQ-001
    section_ref: "Art. 5(1)(e)"
    title: Data retention limits
    text: Personal data shall be kept no longer than necessary.
    risk_level: HIGH
    mandatory: true
  - requirement_id: REQ-002
    section_ref: "Art. 17"
    title: Right to erasure
    text: The data subject shall have the right to erasure.
    risk_level: MEDIUM
`
	cat, err := Load([]byte(seed))
	require.NoError(t, err)
	assert.Equal(t, "GDPR", cat.Framework().ID)
	assert.Equal(t, 2, cat.Len())

	req, ok := cat.Get("REQ-001")
	require.True(t, ok)
	assert.Equal(t, domain.RiskHigh, req.RiskLevel)
	assert.True(t, req.Mandatory)
	assert.Equal(t, "Art. 5(1)(e)", req.SectionRef)
}

func TestLoadMalformedSeed(t *testing.T) {
	_, err := Load([]byte("framework: ["))
	assert.Error(t, err)
}
