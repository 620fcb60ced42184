package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/scene-studio/internal/types"
)

// embeddingModel maps to both vector_embeddings and memory_embeddings;
// the table is chosen per call.
type embeddingModel struct {
	ID        int
	SceneID   *int
	AgentID   *int
	Content   string
	Embedding pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
}

type matchRow struct {
	ID        int
	SceneID   *int
	SceneName *string
	AgentID   *int
	AgentName *string
	Content   string
	Distance  float64
}

// EmbeddingRepo queries and maintains the two embedding pools.
type EmbeddingRepo struct {
	db *gorm.DB
}

// NewEmbeddingRepo returns an EmbeddingRepo.
func NewEmbeddingRepo(db *gorm.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func poolTable(pool string) (string, error) {
	switch pool {
	case types.PoolVector:
		return "vector_embeddings", nil
	case types.PoolMemory:
		return "memory_embeddings", nil
	default:
		return "", fmt.Errorf("unknown embedding pool %q", pool)
	}
}

// QueryMatches returns up to k entries of pool whose cosine distance to
// embedding is below threshold, nearest first.
func (r *EmbeddingRepo) QueryMatches(ctx context.Context, pool string, embedding []float32, threshold float64, k int) ([]types.EmbeddingMatch, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}
	table, err := poolTable(pool)
	if err != nil {
		return nil, err
	}

	// table comes from poolTable, never from input
	query := fmt.Sprintf(`
		SELECT e.id, e.scene_id, s.name AS scene_name, e.agent_id, a.name AS agent_name,
		       e.content, e.embedding <=> $1 AS distance
		FROM %s e
		LEFT JOIN scenes s ON e.scene_id = s.scene_id
		LEFT JOIN agents a ON e.agent_id = a.id
		WHERE e.embedding <=> $1 < $2
		ORDER BY distance ASC
		LIMIT $3`, table)

	var rows []matchRow
	if err := r.db.WithContext(ctx).
		Raw(query, pgvector.NewVector(embedding), threshold, k).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s embeddings: %w", pool, err)
	}

	matches := make([]types.EmbeddingMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, matchFromRow(pool, row))
	}
	return matches, nil
}

// Add stores one embedding in pool.
func (r *EmbeddingRepo) Add(ctx context.Context, record types.EmbeddingRecord) (int, error) {
	table, err := poolTable(record.Pool)
	if err != nil {
		return 0, err
	}
	if len(record.Embedding) == 0 {
		return 0, fmt.Errorf("failed to insert %s embedding: empty vector", record.Pool)
	}
	model := embeddingModel{
		SceneID:   record.SceneID,
		AgentID:   record.AgentID,
		Content:   record.Content,
		Embedding: pgvector.NewVector(record.Embedding),
	}
	if err := r.db.WithContext(ctx).Table(table).Create(&model).Error; err != nil {
		return 0, fmt.Errorf("failed to insert %s embedding: %w", record.Pool, err)
	}
	return model.ID, nil
}

// ClearPool deletes every entry of pool.
func (r *EmbeddingRepo) ClearPool(ctx context.Context, pool string) (int64, error) {
	table, err := poolTable(pool)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s", table))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear %s embeddings: %w", pool, res.Error)
	}
	return res.RowsAffected, nil
}

func matchFromRow(pool string, row matchRow) types.EmbeddingMatch {
	m := types.EmbeddingMatch{
		ID:       row.ID,
		Pool:     pool,
		Content:  row.Content,
		Distance: row.Distance,
		SceneID:  row.SceneID,
		AgentID:  row.AgentID,
	}
	if row.SceneName != nil {
		m.SceneName = *row.SceneName
	}
	if row.AgentName != nil {
		m.AgentName = *row.AgentName
	}
	return m
}
