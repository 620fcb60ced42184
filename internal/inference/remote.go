package inference

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/easeaico/scene-studio/internal/types"
)

// RemoteConfig configures the OpenAI-compatible backend.
type RemoteConfig struct {
	BaseURL          string
	APIKey           string
	InferenceModelID string
	EmbeddingModelID string
	MaxRetries       int
	HTTPClient       *http.Client
}

// Remote talks to an OpenAI-compatible chat/completions and embeddings server.
type Remote struct {
	client *openai.Client
	cfg    RemoteConfig
}

// NewRemote creates the remote backend.
func NewRemote(cfg RemoteConfig) *Remote {
	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &Remote{client: &client, cfg: cfg}
}

func (r *Remote) FetchModels(ctx context.Context) (ModelList, error) {
	page, err := r.client.Models.List(ctx)
	if err != nil {
		slog.Error("failed to fetch remote models", "base_url", r.cfg.BaseURL, "error", err.Error())
		return ModelList{}, wrapError(BackendRemote, "list models", "", err)
	}

	list := ModelList{
		PreferredInferenceModelID: r.cfg.InferenceModelID,
		PreferredEmbeddingModelID: r.cfg.EmbeddingModelID,
	}
	for _, m := range page.Data {
		list.Data = append(list.Data, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return list, nil
}

func (r *Remote) InferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) (string, error) {
	modelID = orModel(modelID, r.cfg.InferenceModelID)
	params := buildChatParams(messages, modelID, orDefault(maxTokens, defaultChatMaxTokens))

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Error("failed to call chat completion", "model", modelID, "error", err.Error())
		return "", wrapError(BackendRemote, "chat inference", "", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", wrapError(BackendRemote, "chat inference", "", errors.New("no choices in chat completion response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (r *Remote) StreamInferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) iter.Seq2[string, error] {
	modelID = orModel(modelID, r.cfg.InferenceModelID)
	return func(yield func(string, error) bool) {
		params := buildChatParams(messages, modelID, orDefault(maxTokens, defaultStreamMaxTokens))

		// The SDK decodes "data:" events and ends on the [DONE] sentinel
		// without handing it to the JSON decoder.
		stream := r.client.Chat.Completions.NewStreaming(ctx, params)
		defer func() {
			if err := stream.Close(); err != nil {
				slog.Error("failed to close stream", "error", err.Error())
			}
		}()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				yield("", wrapError(BackendRemote, "chat stream", "", fmt.Errorf("context cancelled: %w", err)))
				return
			}
			slog.Error("failed to stream chat completion", "model", modelID, "error", err.Error())
			yield("", wrapError(BackendRemote, "chat stream", "", err))
		}
	}
}

func (r *Remote) GetEmbedding(ctx context.Context, input, modelID string) ([]float32, error) {
	modelID = orModel(modelID, r.cfg.EmbeddingModelID)
	resp, err := r.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(modelID),
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(input)},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		slog.Error("failed to generate embedding", "model", modelID, "error", err.Error())
		return nil, wrapError(BackendRemote, "embedding", "", err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, wrapError(BackendRemote, "embedding", "", errors.New("no embedding data received"))
	}

	values := resp.Data[0].Embedding
	vec := make([]float32, len(values))
	zero := true
	for i, v := range values {
		vec[i] = float32(v)
		if v != 0 {
			zero = false
		}
	}
	if zero {
		slog.Warn("remote backend returned an all-zero embedding vector", "model", modelID)
	}
	return vec, nil
}

func buildChatParams(messages []types.Message, modelID string, maxTokens int) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       modelID,
		Messages:    convertMessages(messages),
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
}

func convertMessages(messages []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func orModel(id, def string) string {
	if id == "" {
		return def
	}
	return id
}
