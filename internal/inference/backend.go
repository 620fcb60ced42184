// Package inference 提供远程（OpenAI 兼容）与本地（进程内模型）两种推理后端，
// 以及按持久化配置路由的统一门面。
package inference

import (
	"context"
	"iter"

	"github.com/easeaico/scene-studio/internal/types"
)

const (
	defaultChatMaxTokens   = 2000
	defaultStreamMaxTokens = 1000
	defaultTemperature     = 0.7
)

// Backend is the capability set shared by both variants.
type Backend interface {
	FetchModels(ctx context.Context) (ModelList, error)
	InferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) (string, error)
	// StreamInferChat yields incremental text. A non-nil error ends the sequence;
	// stopping the iteration releases the underlying stream.
	StreamInferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) iter.Seq2[string, error]
	GetEmbedding(ctx context.Context, input, modelID string) ([]float32, error)
}

// ModelInfo describes one available model.
type ModelInfo struct {
	ID            string `json:"id"`
	Type          string `json:"type,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ModelList is the result of FetchModels.
type ModelList struct {
	Data                      []ModelInfo `json:"data"`
	PreferredInferenceModelID string      `json:"preferredInferenceModelId,omitempty"`
	PreferredEmbeddingModelID string      `json:"preferredEmbeddingModelId,omitempty"`
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
