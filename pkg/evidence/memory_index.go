package evidence

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/clausewise/clausewise/pkg/domain"
)

// Embedder converts text into a vector for similarity scoring. Production
// deployments plug in a real embedding service; the default token-frequency
// embedder keeps the index self-contained for tests and offline runs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// MemoryIndex is an in-memory Index over pre-chunked document text. Chunks
// are embedded once at indexing time; queries embed the query text and rank
// by cosine similarity. The index is read-only after Add calls finish, so a
// run's concurrent workers can query it without coordination.
type MemoryIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	chunks   []indexedChunk
}

type indexedChunk struct {
	chunk  domain.EvidenceChunk
	vector []float64
}

// NewMemoryIndex creates an index with the given embedder. A nil embedder
// selects the built-in token-frequency embedder.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	if embedder == nil {
		embedder = tokenEmbedder{}
	}
	return &MemoryIndex{embedder: embedder}
}

// Add indexes one document chunk. Ordinal records original document order.
func (m *MemoryIndex) Add(ctx context.Context, text string, pages []int) error {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, indexedChunk{
		chunk: domain.EvidenceChunk{
			Text:        text,
			PageNumbers: pages,
			SourceHash:  ChunkHash(text),
			Ordinal:     len(m.chunks),
		},
		vector: vec,
	})
	return nil
}

// Len returns the number of indexed chunks.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Query returns up to topK chunks ranked by cosine similarity to the text.
// Chunk Score carries the raw similarity in [0,1]; the retriever re-weights
// it against the lexical signal.
func (m *MemoryIndex) Query(ctx context.Context, text string, topK int) ([]domain.EvidenceChunk, error) {
	qvec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]domain.EvidenceChunk, 0, len(m.chunks))
	for _, ic := range m.chunks {
		c := ic.chunk
		c.Score = cosine(qvec, ic.vector)
		if c.Score > 0 {
			results = append(results, c)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ordinal < results[j].Ordinal
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// tokenEmbedder hashes tokens into a fixed-width frequency vector. Crude,
// deterministic, and dependency-free; adequate for keyword-adjacent
// similarity in tests and offline runs.
type tokenEmbedder struct{}

const embedderDims = 256

func (tokenEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, embedderDims)
	for _, tok := range domain.Tokenize(text) {
		h := fnv32(tok)
		vec[h%embedderDims]++
	}
	return vec, nil
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
