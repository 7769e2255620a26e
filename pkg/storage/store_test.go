package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clausewise/clausewise/pkg/domain"
)

func sampleRun(policyID string) *domain.AuditRun {
	return &domain.AuditRun{
		ID:          "run-" + policyID,
		PolicyID:    policyID,
		FrameworkID: "GDPR",
		State:       domain.StateCompleted,
		Verdict:     domain.VerdictGreen,
		Fingerprint: "abc123",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Assessments: []domain.VerifiedAssessment{
			{
				Assessment: domain.Assessment{
					RequirementID: "REQ-001",
					Status:        domain.StatusCompliant,
					Confidence:    0.9,
					Reasoning:     "explicit clause",
				},
				OriginalStatus: domain.StatusCompliant,
				Approved:       true,
			},
		},
	}
}

func testStores(t *testing.T) map[string]AuditStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]AuditStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun("policy-1")
			require.NoError(t, store.SaveAuditRun(ctx, run))

			loaded, err := store.LoadAuditRun(ctx, "policy-1")
			require.NoError(t, err)
			assert.Equal(t, run.ID, loaded.ID)
			assert.Equal(t, run.State, loaded.State)
			assert.Equal(t, run.Verdict, loaded.Verdict)
			assert.Equal(t, run.Fingerprint, loaded.Fingerprint)
			require.Len(t, loaded.Assessments, 1)
			assert.Equal(t, domain.StatusCompliant, loaded.Assessments[0].Status)
		})
	}
}

func TestStoreMissingRun(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadAuditRun(context.Background(), "nope")
			assert.ErrorIs(t, err, domain.ErrRunNotFound)
		})
	}
}

func TestStoreLaterRunReplacesEarlier(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := sampleRun("policy-1")
			first.State = domain.StatePending
			first.Verdict = ""
			first.Fingerprint = ""
			require.NoError(t, store.SaveAuditRun(ctx, first))

			second := sampleRun("policy-1")
			require.NoError(t, store.SaveAuditRun(ctx, second))

			loaded, err := store.LoadAuditRun(ctx, "policy-1")
			require.NoError(t, err)
			assert.Equal(t, domain.StateCompleted, loaded.State)
			assert.Equal(t, domain.VerdictGreen, loaded.Verdict)
		})
	}
}

func TestMemoryStoreReturnsIsolatedCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	run := sampleRun("policy-1")
	require.NoError(t, store.SaveAuditRun(ctx, run))

	loaded, err := store.LoadAuditRun(ctx, "policy-1")
	require.NoError(t, err)
	loaded.Verdict = domain.VerdictRed
	loaded.Assessments[0].Status = domain.StatusNonCompliant

	again, err := store.LoadAuditRun(ctx, "policy-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictGreen, again.Verdict)
	assert.Equal(t, domain.StatusCompliant, again.Assessments[0].Status)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveAuditRun(ctx, sampleRun("policy-1")))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.LoadAuditRun(ctx, "policy-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.Fingerprint)
}
