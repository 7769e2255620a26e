// Package evidence provides the queryable document index contract and the
// hybrid retriever that merges lexical and semantic retrieval signals into a
// ranked, deduplicated evidence bundle per requirement.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/clausewise/clausewise/pkg/domain"
)

// Index is the narrow query interface over an indexed document. Indexing
// itself is out of scope and assumed complete before retrieval begins.
type Index interface {
	// Query returns up to topK chunks relevant to the text, most relevant
	// first. An empty result is a valid outcome, not an error.
	Query(ctx context.Context, text string, topK int) ([]domain.EvidenceChunk, error)
}

// ChunkHash fingerprints chunk content. Computed at retrieval time and used
// as the deduplication key when lexical and semantic results overlap.
func ChunkHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
