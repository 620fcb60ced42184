package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easeaico/scene-studio/internal/types"
)

// inspection searches accept everything a cosine distance can produce below 1.
const inspectThreshold = 1.0

// PoolWriter maintains embedding pools.
type PoolWriter interface {
	MatchQuerier
	Add(ctx context.Context, record types.EmbeddingRecord) (int, error)
	ClearPool(ctx context.Context, pool string) (int64, error)
}

// DialogLister lists every dialog to be indexed.
type DialogLister interface {
	ListAll(ctx context.Context) ([]types.Dialog, error)
}

// Indexer writes curated memories and rebuilds the dialog pool.
type Indexer struct {
	embedder Embedder
	pools    PoolWriter
	dialogs  DialogLister
	modelID  string
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder Embedder, pools PoolWriter, dialogs DialogLister, modelID string) *Indexer {
	return &Indexer{embedder: embedder, pools: pools, dialogs: dialogs, modelID: modelID}
}

// StoreMemory embeds content into the memory pool.
func (x *Indexer) StoreMemory(ctx context.Context, content string, sceneID, agentID *int) (int, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("memory content is empty")
	}
	vec, err := x.embedder.GetEmbedding(ctx, content, x.modelID)
	if err != nil {
		return 0, fmt.Errorf("failed to embed memory: %w", err)
	}
	return x.pools.Add(ctx, types.EmbeddingRecord{
		Pool:      types.PoolMemory,
		SceneID:   sceneID,
		AgentID:   agentID,
		Content:   content,
		Embedding: vec,
	})
}

// TeachResult summarizes a dialog pool rebuild.
type TeachResult struct {
	Cleared int64 `json:"cleared"`
	Indexed int   `json:"indexed"`
	Skipped int   `json:"skipped"`
}

// TeachDialogs clears the vector pool and embeds every dialog's query and
// response as separate entries. Entries that fail to embed are skipped.
func (x *Indexer) TeachDialogs(ctx context.Context) (TeachResult, error) {
	dialogs, err := x.dialogs.ListAll(ctx)
	if err != nil {
		return TeachResult{}, err
	}

	var res TeachResult
	res.Cleared, err = x.pools.ClearPool(ctx, types.PoolVector)
	if err != nil {
		return TeachResult{}, err
	}

	for _, d := range dialogs {
		sceneID := d.SceneID
		for _, text := range []string{d.UserQuery, d.ResponseText()} {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			vec, err := x.embedder.GetEmbedding(ctx, text, x.modelID)
			if err != nil {
				slog.Warn("failed to embed dialog, skipping", "dialog_id", d.ID, "error", err)
				res.Skipped++
				continue
			}
			if _, err := x.pools.Add(ctx, types.EmbeddingRecord{
				Pool:      types.PoolVector,
				SceneID:   &sceneID,
				Content:   text,
				Embedding: vec,
			}); err != nil {
				slog.Warn("failed to store dialog embedding, skipping", "dialog_id", d.ID, "error", err)
				res.Skipped++
				continue
			}
			res.Indexed++
		}
	}

	slog.Info("dialog pool rebuilt", "cleared", res.Cleared, "indexed", res.Indexed, "skipped", res.Skipped)
	return res, nil
}

// SearchResult keeps the pools apart for inspection.
type SearchResult struct {
	Memory []types.EmbeddingMatch `json:"memory"`
	Vector []types.EmbeddingMatch `json:"vector"`
}

// Search queries both pools without the retrieval threshold.
func (x *Indexer) Search(ctx context.Context, text string, k int) (SearchResult, error) {
	vec, err := x.embedder.GetEmbedding(ctx, text, x.modelID)
	if err != nil {
		return SearchResult{}, fmt.Errorf("failed to embed search text: %w", err)
	}
	var res SearchResult
	if res.Memory, err = x.pools.QueryMatches(ctx, types.PoolMemory, vec, inspectThreshold, k); err != nil {
		return SearchResult{}, err
	}
	if res.Vector, err = x.pools.QueryMatches(ctx, types.PoolVector, vec, inspectThreshold, k); err != nil {
		return SearchResult{}, err
	}
	return res, nil
}
