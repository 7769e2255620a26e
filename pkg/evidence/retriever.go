package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/clausewise/clausewise/pkg/domain"
)

// RetrieverOptions control hybrid scoring. The lexical/semantic weighting is
// a policy knob, not a fixed constant; the defaults lean semantic because
// statutory language rarely matches policy wording verbatim.
type RetrieverOptions struct {
	// TopK bounds the number of chunks in a bundle. Zero selects the default.
	TopK int
	// LexicalWeight and SemanticWeight combine the two retrieval signals:
	// score = LexicalWeight*lexical + SemanticWeight*semantic. Both signals
	// are normalized to [0,1] before weighting.
	LexicalWeight  float64
	SemanticWeight float64
	Logger         *slog.Logger
}

const (
	defaultTopK           = 4
	defaultLexicalWeight  = 0.4
	defaultSemanticWeight = 0.6
)

// Retriever ranks index results for a requirement. It performs no reasoning
// and no summarization, pure retrieval.
type Retriever struct {
	index  Index
	opts   RetrieverOptions
	logger *slog.Logger
}

// NewRetriever creates a retriever over the given index.
func NewRetriever(index Index, opts RetrieverOptions) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.LexicalWeight <= 0 && opts.SemanticWeight <= 0 {
		opts.LexicalWeight = defaultLexicalWeight
		opts.SemanticWeight = defaultSemanticWeight
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, opts: opts, logger: logger}
}

// Retrieve returns the evidence bundle for one requirement. The index is
// queried once; each returned chunk is re-scored with the weighted hybrid
// formula, deduplicated by source hash, sorted by score with ties broken by
// original document order, and truncated to TopK.
func (r *Retriever) Retrieve(ctx context.Context, req domain.Requirement) (domain.EvidenceBundle, error) {
	bundle := domain.EvidenceBundle{RequirementID: req.RequirementID}

	query := req.Title + " " + req.Text
	candidates, err := r.index.Query(ctx, query, r.opts.TopK*2)
	if err != nil {
		return bundle, fmt.Errorf("evidence: query index for %s: %w", req.RequirementID, err)
	}
	if len(candidates) == 0 {
		return bundle, nil
	}

	keywords := req.Keywords()
	seen := make(map[string]bool, len(candidates))
	scored := make([]domain.EvidenceChunk, 0, len(candidates))
	for _, chunk := range candidates {
		if chunk.SourceHash == "" {
			chunk.SourceHash = ChunkHash(chunk.Text)
		}
		if seen[chunk.SourceHash] {
			continue
		}
		seen[chunk.SourceHash] = true

		lexical := lexicalScore(chunk.Text, keywords)
		semantic := clamp01(chunk.Score)
		chunk.Score = r.opts.LexicalWeight*lexical + r.opts.SemanticWeight*semantic
		scored = append(scored, chunk)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Ordinal < scored[j].Ordinal
	})

	if len(scored) > r.opts.TopK {
		scored = scored[:r.opts.TopK]
	}
	bundle.Chunks = scored
	return bundle, nil
}

// lexicalScore is the fraction of requirement keywords present in the chunk,
// with a small length bonus preferring substantial clauses over fragments.
func lexicalScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	score := float64(hits) / float64(len(keywords))
	lengthBonus := float64(min(len(lower), 500)) / 500 * 0.1
	return clamp01(score + lengthBonus)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
