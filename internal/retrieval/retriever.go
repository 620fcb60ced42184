// Package retrieval finds stored content relevant to a query across the
// memory and vector embedding pools.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/easeaico/scene-studio/internal/types"
)

// Embedder produces a query embedding.
type Embedder interface {
	GetEmbedding(ctx context.Context, input, modelID string) ([]float32, error)
}

// MatchQuerier runs a nearest-neighbour query against one pool.
type MatchQuerier interface {
	QueryMatches(ctx context.Context, pool string, embedding []float32, threshold float64, k int) ([]types.EmbeddingMatch, error)
}

// Retriever merges hits from the memory and vector pools.
type Retriever struct {
	embedder  Embedder
	matches   MatchQuerier
	modelID   string
	topK      int
	threshold float64
}

// NewRetriever creates a Retriever. An empty modelID disables retrieval.
func NewRetriever(embedder Embedder, matches MatchQuerier, modelID string, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{
		embedder:  embedder,
		matches:   matches,
		modelID:   modelID,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns at most topK hits below the distance threshold, nearest
// first. No query or no embedding model means no retrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]types.EmbeddingMatch, error) {
	if query == "" || r.modelID == "" {
		return nil, nil
	}

	vec, err := r.embedder.GetEmbedding(ctx, query, r.modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to embed retrieval query: %w", err)
	}

	memories, err := r.matches.QueryMatches(ctx, types.PoolMemory, vec, r.threshold, r.topK)
	if err != nil {
		return nil, err
	}
	vectors, err := r.matches.QueryMatches(ctx, types.PoolVector, vec, r.threshold, r.topK)
	if err != nil {
		return nil, err
	}

	merged := Merge(r.topK, memories, vectors)
	slog.Debug("retrieved memories", "memory_hits", len(memories), "vector_hits", len(vectors), "kept", len(merged))
	return merged, nil
}

// Merge concatenates the pools in order, sorts by ascending distance and keeps
// the first k. Ties keep their concatenation order.
func Merge(k int, pools ...[]types.EmbeddingMatch) []types.EmbeddingMatch {
	var all []types.EmbeddingMatch
	for _, pool := range pools {
		all = append(all, pool...)
	}
	slices.SortStableFunc(all, func(a, b types.EmbeddingMatch) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if k >= 0 && len(all) > k {
		all = all[:k]
	}
	return all
}
