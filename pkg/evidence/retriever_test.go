package evidence

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clausewise/clausewise/pkg/domain"
)

type staticIndex struct {
	chunks []domain.EvidenceChunk
	err    error
}

func (s staticIndex) Query(context.Context, string, int) ([]domain.EvidenceChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

var retentionReq = domain.Requirement{
	RequirementID: "REQ-001",
	Title:         "Data retention limits",
	Text:          "The controller shall not retain personal data longer than necessary.",
}

func TestRetrieveEmptyIndexYieldsEmptyBundle(t *testing.T) {
	r := NewRetriever(staticIndex{}, RetrieverOptions{})
	bundle, err := r.Retrieve(context.Background(), retentionReq)
	require.NoError(t, err)
	assert.Equal(t, "REQ-001", bundle.RequirementID)
	assert.True(t, bundle.Empty())
}

func TestRetrieveIndexErrorPropagates(t *testing.T) {
	r := NewRetriever(staticIndex{err: fmt.Errorf("index offline")}, RetrieverOptions{})
	bundle, err := r.Retrieve(context.Background(), retentionReq)
	require.Error(t, err)
	assert.True(t, bundle.Empty())
}

func TestRetrieveDeduplicatesBySourceHash(t *testing.T) {
	text := "Personal data retention is limited to twelve months."
	r := NewRetriever(staticIndex{chunks: []domain.EvidenceChunk{
		{Text: text, Score: 0.9, Ordinal: 0},
		{Text: text, Score: 0.7, Ordinal: 5},
		{Text: "Unrelated clause about cookies.", Score: 0.4, Ordinal: 1},
	}}, RetrieverOptions{})

	bundle, err := r.Retrieve(context.Background(), retentionReq)
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 2)
	assert.Equal(t, ChunkHash(text), bundle.Chunks[0].SourceHash)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	var chunks []domain.EvidenceChunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, domain.EvidenceChunk{
			Text:    fmt.Sprintf("Clause %d about data retention periods.", i),
			Score:   float64(10-i) / 10,
			Ordinal: i,
		})
	}
	r := NewRetriever(staticIndex{chunks: chunks}, RetrieverOptions{TopK: 3})

	bundle, err := r.Retrieve(context.Background(), retentionReq)
	require.NoError(t, err)
	assert.Len(t, bundle.Chunks, 3)
}

func TestRetrieveHybridScoringPrefersKeywordMatches(t *testing.T) {
	// Same semantic score; the chunk mentioning the requirement keywords must
	// rank first on the lexical signal.
	r := NewRetriever(staticIndex{chunks: []domain.EvidenceChunk{
		{Text: "We use cookies to improve the browsing experience.", Score: 0.5, Ordinal: 0},
		{Text: "Data retention limits apply to all personal records.", Score: 0.5, Ordinal: 1},
	}}, RetrieverOptions{LexicalWeight: 0.4, SemanticWeight: 0.6})

	bundle, err := r.Retrieve(context.Background(), retentionReq)
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 2)
	assert.Equal(t, 1, bundle.Chunks[0].Ordinal)
	assert.Greater(t, bundle.Chunks[0].Score, bundle.Chunks[1].Score)
}

func TestRetrieveTieBreaksByDocumentOrder(t *testing.T) {
	// Identical text scores; earlier document position wins.
	r := NewRetriever(staticIndex{chunks: []domain.EvidenceChunk{
		{Text: "Second clause about consent.", Score: 0.5, Ordinal: 7},
		{Text: "Second clause about consent!", Score: 0.5, Ordinal: 2},
	}}, RetrieverOptions{})

	bundle, err := r.Retrieve(context.Background(), domain.Requirement{RequirementID: "REQ-X", Title: "Something else entirely"})
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 2)
	assert.Equal(t, 2, bundle.Chunks[0].Ordinal)
}

func TestMemoryIndexRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(nil)
	require.NoError(t, idx.Add(ctx, "Personal data is retained for thirty days and then erased.", []int{1}))
	require.NoError(t, idx.Add(ctx, "Our offices are located in Berlin and Lisbon.", []int{4}))
	require.Equal(t, 2, idx.Len())

	results, err := idx.Query(ctx, "personal data retention and erasure", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "retained for thirty days")
	assert.Equal(t, []int{1}, results[0].PageNumbers)
	assert.NotEmpty(t, results[0].SourceHash)
}

func TestMemoryIndexTopKBound(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(nil)
	for i := 0; i < 6; i++ {
		require.NoError(t, idx.Add(ctx, fmt.Sprintf("Clause %d mentions data processing terms.", i), nil))
	}
	results, err := idx.Query(ctx, "data processing", 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)
}
