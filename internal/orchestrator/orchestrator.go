// Package orchestrator enforces the token budget on assembled prompts and
// dispatches them to the active inference backend.
package orchestrator

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/scene-studio/internal/prompt"
	"github.com/easeaico/scene-studio/internal/tokenizer"
	"github.com/easeaico/scene-studio/internal/types"
)

// Default completion limits per flow.
const (
	PlayMaxTokens   = 1500
	RefineMaxTokens = 1000
	ThinkMaxTokens  = 300
	PlanMaxTokens   = 400
	EvolveMaxTokens = 1000
	StyleMaxTokens  = 1500
)

// Backend is the part of the inference facade the orchestrator dispatches to.
type Backend interface {
	InferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) (string, error)
	StreamInferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) iter.Seq2[string, error]
}

// AgentWriter persists reflection results.
type AgentWriter interface {
	UpdateState(ctx context.Context, id int, state string) error
	UpdateGoals(ctx context.Context, id int, goals string) error
	UpdateStyleGuide(ctx context.Context, id int, guide string) error
}

// Sink receives a streamed completion. Done is called exactly once per
// dispatched stream, after any Chunk or Error call.
type Sink interface {
	Chunk(text string) error
	Error(f Failure) error
	Done() error
}

// Options tune an Orchestrator.
type Options struct {
	// MaxContext is the token limit; prompts at or above it are rejected.
	MaxContext int
	// Timeout bounds each backend call when positive.
	Timeout time.Duration
	// Count overrides the token counter.
	Count func([]types.Message) int
}

// Orchestrator runs the assemble, budget, dispatch sequence for every flow.
type Orchestrator struct {
	assembler *prompt.Assembler
	backend   Backend
	agents    AgentWriter
	limit     int
	timeout   time.Duration
	count     func([]types.Message) int
}

// New creates an Orchestrator.
func New(assembler *prompt.Assembler, backend Backend, agents AgentWriter, opts Options) *Orchestrator {
	if opts.MaxContext <= 0 {
		opts.MaxContext = 4096
	}
	if opts.Count == nil {
		opts.Count = tokenizer.CountMessages
	}
	return &Orchestrator{
		assembler: assembler,
		backend:   backend,
		agents:    agents,
		limit:     opts.MaxContext,
		timeout:   opts.Timeout,
		count:     opts.Count,
	}
}

// CheckBudget returns a *BudgetError when messages reach the context limit.
func (o *Orchestrator) CheckBudget(messages []types.Message) error {
	tokens := o.count(messages)
	slog.Debug("prompt token check", "tokens", tokens, "limit", o.limit)
	if tokens >= o.limit {
		return &BudgetError{Tokens: tokens, Limit: o.limit}
	}
	return nil
}

// Complete checks the budget and returns the full completion.
func (o *Orchestrator) Complete(ctx context.Context, messages []types.Message, modelID string, maxTokens int) (string, error) {
	if err := o.CheckBudget(messages); err != nil {
		return "", err
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()
	slog.Info("dispatching completion", "request_id", reqID, "model", modelID, "messages", len(messages), "max_tokens", maxTokens)

	out, err := o.backend.InferChat(ctx, messages, modelID, maxTokens)
	if err != nil {
		slog.Error("completion failed", "request_id", reqID, "error", err)
		return "", err
	}
	slog.Info("completion finished", "request_id", reqID, "chars", len(out), "elapsed", time.Since(start))
	return out, nil
}

// Stream checks the budget and relays the completion to sink. A budget
// failure is returned without touching sink. Once dispatched, backend
// failures are also reported to sink.Error, and sink.Done is always called.
// The returned text is what was relayed.
func (o *Orchestrator) Stream(ctx context.Context, messages []types.Message, modelID string, maxTokens int, sink Sink) (string, error) {
	if err := o.CheckBudget(messages); err != nil {
		return "", err
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()
	slog.Info("dispatching stream", "request_id", reqID, "model", modelID, "messages", len(messages), "max_tokens", maxTokens)

	var (
		sb        strings.Builder
		streamErr error
		sinkErr   error
	)
	for chunk, err := range o.backend.StreamInferChat(ctx, messages, modelID, maxTokens) {
		if err != nil {
			streamErr = err
			break
		}
		sb.WriteString(chunk)
		if sinkErr = sink.Chunk(chunk); sinkErr != nil {
			break
		}
	}

	if streamErr != nil {
		slog.Error("stream failed", "request_id", reqID, "relayed_chars", sb.Len(), "error", streamErr)
		if err := sink.Error(AsFailure(streamErr)); err != nil {
			slog.Warn("failed to relay stream error", "request_id", reqID, "error", err)
		}
	}
	if err := sink.Done(); err != nil && sinkErr == nil {
		sinkErr = err
	}

	switch {
	case streamErr != nil:
		return sb.String(), streamErr
	case sinkErr != nil:
		slog.Warn("stream consumer went away", "request_id", reqID, "error", sinkErr)
		return sb.String(), errors.Join(context.Canceled, sinkErr)
	}
	slog.Info("stream finished", "request_id", reqID, "chars", sb.Len(), "elapsed", time.Since(start))
	return sb.String(), nil
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

