// Package storage implements the relational and vector persistence used by
// prompt assembly and retrieval, on PostgreSQL with pgvector.
//
// The schema is managed outside this package. Upserts need UNIQUE (domain, key)
// on state and UNIQUE (prompt_name) on app_prompts.
package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store holds the DB pool and repositories.
type Store struct {
	db         *gorm.DB
	Agents     *AgentRepo
	Scenes     *SceneRepo
	Dialogs    *DialogRepo
	Prompts    *PromptRepo
	State      *StateRepo
	Embeddings *EmbeddingRepo
}

// NewStore opens the PostgreSQL pool and builds the repositories.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreWithDB(db), nil
}

// NewStoreWithDB builds the repositories on an existing handle.
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{
		db:         db,
		Agents:     NewAgentRepo(db),
		Scenes:     NewSceneRepo(db),
		Dialogs:    NewDialogRepo(db),
		Prompts:    NewPromptRepo(db),
		State:      NewStateRepo(db),
		Embeddings: NewEmbeddingRepo(db),
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
