package orchestrator

import (
	"context"
	"log/slog"

	"github.com/easeaico/scene-studio/internal/pacing"
	"github.com/easeaico/scene-studio/internal/types"
)

// TurnRequest is one paced play turn.
type TurnRequest struct {
	PlayRequest
	// State is the pacing state left by the previous turn.
	State types.PacingState
	// Refine runs the responder's checker over the draft.
	Refine bool
}

// TurnResult is the outcome of PlayTurn.
type TurnResult struct {
	Directive pacing.Directive
	Draft     string
	Final     string
	Next      types.PacingState
}

// PlayTurn decides the pacing directive, plays, optionally refines, and
// advances the pacing state on the final text. When refining fails the
// draft becomes the final text.
func (o *Orchestrator) PlayTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	directive := pacing.Decide(req.State)
	req.Pacing = directive

	draft, err := o.Play(ctx, req.PlayRequest)
	if err != nil {
		return TurnResult{}, err
	}

	final := draft
	if req.Refine {
		refined, err := o.refine(ctx, req, draft, directive)
		switch {
		case err != nil:
			slog.Warn("refine pass failed, keeping draft", "agent", req.Responder, "error", err)
		case refined != "":
			final = refined
		}
	}

	return TurnResult{
		Directive: directive,
		Draft:     draft,
		Final:     final,
		Next:      pacing.Advance(req.Query, final),
	}, nil
}

func (o *Orchestrator) refine(ctx context.Context, req TurnRequest, draft string, directive pacing.Directive) (string, error) {
	msgs, err := o.assembler.Refine(ctx, req.Responder, draft, directive)
	if err != nil {
		return "", err
	}
	return o.Complete(ctx, msgs, req.ModelID, RefineMaxTokens)
}

