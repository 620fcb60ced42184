package inference

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/easeaico/scene-studio/internal/types"
)

// ChatModel is a loaded in-process chat model.
type ChatModel interface {
	// Predict runs one completion over a fully rendered prompt. onToken is
	// called for each produced piece of text; returning false stops generation.
	Predict(ctx context.Context, prompt string, maxTokens int, onToken func(string) bool) (string, error)
	ContextSize() int
	Close()
}

// EmbeddingModel is a loaded in-process embedding model.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ContextSize() int
	Close()
}

// ModelLoader loads model artifacts from disk.
type ModelLoader interface {
	LoadChat(path string, gpuLayers int) (ChatModel, error)
	LoadEmbedding(path string, gpuLayers int) (EmbeddingModel, error)
}

// LocalConfig configures the in-process backend.
type LocalConfig struct {
	InferenceModelPath string
	EmbeddingModelPath string
	GPULayers          int
}

// Local runs inference on models loaded into this process.
//
// Lifecycle: pending -> initializing -> success | failed. Concurrent Initialize
// calls share one in-flight attempt. failed is sticky until Unload.
type Local struct {
	cfg    LocalConfig
	loader ModelLoader

	mu       sync.Mutex
	status   Status
	inflight chan struct{}
	gen      uint64
	chat     ChatModel
	embed    EmbeddingModel
}

// NewLocal returns an unloaded local backend.
func NewLocal(cfg LocalConfig, loader ModelLoader) *Local {
	return &Local{
		cfg:    cfg,
		loader: loader,
		status: StatusPending,
	}
}

// Status returns the current initialization status.
func (l *Local) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Initialize loads both models unless they are loaded, loading, or failed.
// It returns the status observed once the shared attempt finishes. A waiter
// whose attempt was invalidated by Unload starts a fresh one.
func (l *Local) Initialize(ctx context.Context) Status {
	l.mu.Lock()
	for l.inflight != nil {
		ch := l.inflight
		l.mu.Unlock()
		slog.Debug("local model initialization already in progress")
		select {
		case <-ch:
		case <-ctx.Done():
			return l.Status()
		}
		l.mu.Lock()
	}
	if l.status != StatusPending {
		status := l.status
		l.mu.Unlock()
		return status
	}
	ch := make(chan struct{})
	l.inflight = ch
	gen := l.gen
	l.mu.Unlock()

	chat, embed, err := l.load()

	l.mu.Lock()
	defer l.mu.Unlock()
	defer close(ch)
	l.inflight = nil

	if gen != l.gen {
		// unloaded while loading; drop what we got
		closeModels(chat, embed)
		return l.status
	}
	if err != nil {
		slog.Error("failed to load local models", "error", err)
		l.status = StatusFailed
		return l.status
	}
	l.chat, l.embed = chat, embed
	l.status = StatusSuccess
	slog.Info("local models loaded", "inference_model", l.cfg.InferenceModelPath, "embedding_model", l.cfg.EmbeddingModelPath)
	return l.status
}

func (l *Local) load() (ChatModel, EmbeddingModel, error) {
	if l.cfg.InferenceModelPath == "" || l.cfg.EmbeddingModelPath == "" {
		slog.Warn("INFERENCE_MODEL_GGUF and EMBEDDING_MODEL_GGUF must be set, local inference is disabled")
		return nil, nil, errors.New("model paths are not configured")
	}
	if l.loader == nil {
		return nil, nil, errors.New("no model loader configured")
	}

	slog.Info("loading local inference model", "path", l.cfg.InferenceModelPath, "gpu_layers", l.cfg.GPULayers)
	chat, err := l.loader.LoadChat(l.cfg.InferenceModelPath, l.cfg.GPULayers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load inference model: %w", err)
	}

	slog.Info("loading local embedding model", "path", l.cfg.EmbeddingModelPath, "gpu_layers", l.cfg.GPULayers)
	embed, err := l.loader.LoadEmbedding(l.cfg.EmbeddingModelPath, l.cfg.GPULayers)
	if err != nil {
		chat.Close()
		return nil, nil, fmt.Errorf("failed to load embedding model: %w", err)
	}
	return chat, embed, nil
}

// Unload releases both models and resets the status to pending.
func (l *Local) Unload() {
	l.mu.Lock()
	chat, embed := l.chat, l.embed
	l.chat, l.embed = nil, nil
	l.status = StatusPending
	l.gen++
	l.mu.Unlock()

	if chat == nil && embed == nil {
		slog.Debug("local models were already unloaded")
		return
	}
	closeModels(chat, embed)
	slog.Info("local models unloaded")
}

func closeModels(chat ChatModel, embed EmbeddingModel) {
	if chat != nil {
		chat.Close()
	}
	if embed != nil {
		embed.Close()
	}
}

func (l *Local) ready(ctx context.Context, op string) (ChatModel, EmbeddingModel, error) {
	status := l.Initialize(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if status != StatusSuccess || l.chat == nil || l.embed == nil {
		return nil, nil, &Error{Backend: BackendLocal, Op: op, Status: l.status, Err: ErrModelUnavailable}
	}
	return l.chat, l.embed, nil
}

func (l *Local) FetchModels(ctx context.Context) (ModelList, error) {
	chat, embed, err := l.ready(ctx, "list models")
	if err != nil {
		return ModelList{}, err
	}

	inferenceID := filepath.Base(l.cfg.InferenceModelPath)
	embeddingID := filepath.Base(l.cfg.EmbeddingModelPath)
	return ModelList{
		Data: []ModelInfo{
			{ID: inferenceID, Type: "inference", ContextLength: orDefault(chat.ContextSize(), 4096)},
			{ID: embeddingID, Type: "embedding", ContextLength: orDefault(embed.ContextSize(), 4096)},
		},
		PreferredInferenceModelID: inferenceID,
		PreferredEmbeddingModelID: embeddingID,
	}, nil
}

func (l *Local) InferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) (string, error) {
	chat, _, err := l.ready(ctx, "chat inference")
	if err != nil {
		return "", err
	}
	prompt, err := renderChatPrompt(messages)
	if err != nil {
		return "", wrapError(BackendLocal, "chat inference", StatusSuccess, err)
	}

	out, err := chat.Predict(ctx, prompt, orDefault(maxTokens, defaultChatMaxTokens), nil)
	if err != nil {
		slog.Error("local inference failed", "error", err)
		return "", wrapError(BackendLocal, "chat inference", StatusSuccess, err)
	}
	return out, nil
}

func (l *Local) StreamInferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		chat, _, err := l.ready(ctx, "chat stream")
		if err != nil {
			yield("", err)
			return
		}
		prompt, err := renderChatPrompt(messages)
		if err != nil {
			yield("", wrapError(BackendLocal, "chat stream", StatusSuccess, err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		tokens := make(chan string)
		done := make(chan error, 1)
		go func() {
			defer close(tokens)
			_, err := chat.Predict(ctx, prompt, orDefault(maxTokens, defaultStreamMaxTokens), func(tok string) bool {
				if ctx.Err() != nil {
					return false
				}
				select {
				case tokens <- tok:
					return true
				case <-ctx.Done():
					return false
				}
			})
			done <- err
		}()

		for tok := range tokens {
			if !yield(tok, nil) {
				// the deferred cancel stops the producer at its next token
				return
			}
		}

		if err := <-done; err != nil {
			slog.Error("local stream inference failed", "error", err)
			yield("", wrapError(BackendLocal, "chat stream", StatusSuccess, err))
			return
		}
		if err := ctx.Err(); err != nil {
			yield("", wrapError(BackendLocal, "chat stream", StatusSuccess, err))
		}
	}
}

func (l *Local) GetEmbedding(ctx context.Context, input, modelID string) ([]float32, error) {
	_, embed, err := l.ready(ctx, "embedding")
	if err != nil {
		return nil, err
	}
	vec, err := embed.Embed(ctx, input)
	if err != nil {
		slog.Error("local embedding failed", "error", err)
		return nil, wrapError(BackendLocal, "embedding", StatusSuccess, err)
	}
	return vec, nil
}
