package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/easeaico/scene-studio/internal/config"
	"github.com/easeaico/scene-studio/internal/inference"
	"github.com/easeaico/scene-studio/internal/llama"
	"github.com/easeaico/scene-studio/internal/orchestrator"
	"github.com/easeaico/scene-studio/internal/pacing"
	"github.com/easeaico/scene-studio/internal/prompt"
	"github.com/easeaico/scene-studio/internal/retrieval"
	"github.com/easeaico/scene-studio/internal/storage"
)

// app holds the wired services for one process.
type app struct {
	cfg          config.Config
	store        *storage.Store
	backend      *inference.Service
	indexer      *retrieval.Indexer
	orchestrator *orchestrator.Orchestrator
	pacing       *pacing.Store
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	setting := config.NewBackendSetting(store.State)
	remote := inference.NewRemote(inference.RemoteConfig{
		BaseURL:          cfg.RemoteBaseURL,
		APIKey:           cfg.RemoteAPIKey,
		InferenceModelID: cfg.InferenceModelID,
		EmbeddingModelID: cfg.EmbeddingModelID,
	})
	local := inference.NewLocal(inference.LocalConfig{
		InferenceModelPath: cfg.InferenceModelPath,
		EmbeddingModelPath: cfg.EmbeddingModelPath,
		GPULayers:          cfg.GPULayers,
	}, llama.NewLoader(cfg.LocalContextSize))
	backend := inference.NewService(setting, remote, local)

	retriever := retrieval.NewRetriever(backend, store.Embeddings, cfg.EmbeddingModelID, cfg.TopK, cfg.DistanceThreshold)
	assembler := prompt.NewAssembler(store.Agents, store.Scenes, store.Dialogs, store.Prompts, retriever)
	orch := orchestrator.New(assembler, backend, store.Agents, orchestrator.Options{
		MaxContext: cfg.MaxContext,
		Timeout:    cfg.InferenceTimeout,
	})

	return &app{
		cfg:          cfg,
		store:        store,
		backend:      backend,
		indexer:      retrieval.NewIndexer(backend, store.Embeddings, store.Dialogs, cfg.EmbeddingModelID),
		orchestrator: orch,
		pacing:       pacing.NewStore(store.State),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
