// Package llama loads GGUF models in-process through llama.cpp bindings.
package llama

import (
	"context"
	"fmt"
	"sync"

	llamacpp "github.com/go-skynet/go-llama.cpp"

	"github.com/easeaico/scene-studio/internal/inference"
)

const temperature = 0.7

// Loader implements inference.ModelLoader.
type Loader struct {
	ContextSize int
}

// NewLoader returns a loader that opens models with the given context window.
func NewLoader(contextSize int) *Loader {
	if contextSize <= 0 {
		contextSize = 4096
	}
	return &Loader{ContextSize: contextSize}
}

func (ld *Loader) LoadChat(path string, gpuLayers int) (inference.ChatModel, error) {
	m, err := llamacpp.New(path,
		llamacpp.SetContext(ld.ContextSize),
		llamacpp.SetGPULayers(gpuLayers),
		llamacpp.EnableF16Memory,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	return &model{l: m, ctxSize: ld.ContextSize}, nil
}

func (ld *Loader) LoadEmbedding(path string, gpuLayers int) (inference.EmbeddingModel, error) {
	m, err := llamacpp.New(path,
		llamacpp.SetContext(ld.ContextSize),
		llamacpp.SetGPULayers(gpuLayers),
		llamacpp.EnableEmbeddings,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	return &model{l: m, ctxSize: ld.ContextSize}, nil
}

// model serializes access; a llama.cpp context is not safe for concurrent use.
type model struct {
	mu      sync.Mutex
	l       *llamacpp.LLama
	ctxSize int
}

func (m *model) Predict(ctx context.Context, prompt string, maxTokens int, onToken func(string) bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l == nil {
		return "", inference.ErrModelUnavailable
	}

	callback := func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if onToken != nil {
			return onToken(tok)
		}
		return true
	}
	out, err := m.l.Predict(prompt,
		llamacpp.SetTokens(maxTokens),
		llamacpp.SetTemperature(temperature),
		llamacpp.SetStopWords(inference.ChatStopWord),
		llamacpp.SetTokenCallback(callback),
	)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (m *model) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l == nil {
		return nil, inference.ErrModelUnavailable
	}
	return m.l.Embeddings(text)
}

func (m *model) ContextSize() int {
	return m.ctxSize
}

func (m *model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l != nil {
		m.l.Free()
		m.l = nil
	}
}
