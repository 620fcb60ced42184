package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/scene-studio/internal/pacing"
	"github.com/easeaico/scene-studio/internal/prompt"
)

// PlayRequest asks the responder to answer the actor's query.
type PlayRequest struct {
	SceneID   int              `json:"scene_id"`
	Query     string           `json:"user_query"`
	Responder string           `json:"ai_persona_name"`
	Actor     string           `json:"user_persona_name"`
	ModelID   string           `json:"selected_model_id"`
	Pacing    pacing.Directive `json:"-"`
}

func (r PlayRequest) prompt() prompt.PlayRequest {
	return prompt.PlayRequest{
		SceneID:   r.SceneID,
		Query:     r.Query,
		Responder: r.Responder,
		Actor:     r.Actor,
		Pacing:    r.Pacing,
	}
}

// SceneRequest names a scene and the two personas in it.
type SceneRequest struct {
	SceneID   int    `json:"scene_id"`
	Responder string `json:"ai_persona_name"`
	Actor     string `json:"user_persona_name"`
	ModelID   string `json:"selected_model_id"`
}

// RefineRequest asks an agent's checker to rework a draft.
type RefineRequest struct {
	Agent   string           `json:"agent_name"`
	Draft   string           `json:"agent_response_text"`
	ModelID string           `json:"selected_model_id"`
	Pacing  pacing.Directive `json:"-"`
}

// AgentRequest targets one agent within a scene.
type AgentRequest struct {
	SceneID int    `json:"scene_id"`
	Agent   string `json:"agent_name"`
	ModelID string `json:"selected_model_id"`
}

// StyleRequest asks for a style guide synthesized from reviewer comments.
type StyleRequest struct {
	Agent   string `json:"agent_name"`
	ModelID string `json:"selected_model_id"`
	// Save stores the generated guide as the agent's style_guide.
	Save bool `json:"save"`
}

func (o *Orchestrator) Play(ctx context.Context, req PlayRequest) (string, error) {
	msgs, err := o.assembler.Play(ctx, req.prompt())
	if err != nil {
		return "", err
	}
	return o.Complete(ctx, msgs, req.ModelID, PlayMaxTokens)
}

func (o *Orchestrator) PlayStream(ctx context.Context, req PlayRequest, sink Sink) (string, error) {
	msgs, err := o.assembler.Play(ctx, req.prompt())
	if err != nil {
		return "", err
	}
	return o.Stream(ctx, msgs, req.ModelID, PlayMaxTokens, sink)
}

// AutoStream lets the model speak for the actor.
func (o *Orchestrator) AutoStream(ctx context.Context, req SceneRequest, sink Sink) (string, error) {
	msgs, err := o.assembler.Auto(ctx, req.SceneID, req.Actor, req.Responder)
	if err != nil {
		return "", err
	}
	return o.Stream(ctx, msgs, req.ModelID, PlayMaxTokens, sink)
}

func (o *Orchestrator) WonderStream(ctx context.Context, req SceneRequest, sink Sink) (string, error) {
	msgs, err := o.assembler.Wonder(ctx, req.SceneID, req.Responder, req.Actor)
	if err != nil {
		return "", err
	}
	return o.Stream(ctx, msgs, req.ModelID, PlayMaxTokens, sink)
}

func (o *Orchestrator) RefineStream(ctx context.Context, req RefineRequest, sink Sink) (string, error) {
	msgs, err := o.assembler.Refine(ctx, req.Agent, req.Draft, req.Pacing)
	if err != nil {
		return "", err
	}
	return o.Stream(ctx, msgs, req.ModelID, RefineMaxTokens, sink)
}

// Think rewrites the agent's state. The state is persisted only after a
// successful completion.
func (o *Orchestrator) Think(ctx context.Context, req AgentRequest) (string, error) {
	r, err := o.assembler.Think(ctx, req.SceneID, req.Agent)
	if err != nil {
		return "", err
	}
	state, err := o.Complete(ctx, r.Messages, req.ModelID, ThinkMaxTokens)
	if err != nil {
		return "", err
	}
	if err := o.agents.UpdateState(ctx, r.Agent.ID, state); err != nil {
		return "", fmt.Errorf("failed to save new state: %w", err)
	}
	slog.Info("agent state updated", "agent", r.Agent.Name)
	return state, nil
}

// Plan rewrites the agent's goals, persisting only on success.
func (o *Orchestrator) Plan(ctx context.Context, req AgentRequest) (string, error) {
	r, err := o.assembler.Plan(ctx, req.SceneID, req.Agent)
	if err != nil {
		return "", err
	}
	goals, err := o.Complete(ctx, r.Messages, req.ModelID, PlanMaxTokens)
	if err != nil {
		return "", err
	}
	if err := o.agents.UpdateGoals(ctx, r.Agent.ID, goals); err != nil {
		return "", fmt.Errorf("failed to save new goals: %w", err)
	}
	slog.Info("agent goals updated", "agent", r.Agent.Name)
	return goals, nil
}

// Style generates a style guide for the agent. With Save set the guide
// replaces the stored one, only after a successful completion.
func (o *Orchestrator) Style(ctx context.Context, req StyleRequest) (string, error) {
	r, err := o.assembler.Style(ctx, req.Agent)
	if err != nil {
		return "", err
	}
	guide, err := o.Complete(ctx, r.Messages, req.ModelID, StyleMaxTokens)
	if err != nil {
		return "", err
	}
	if !req.Save {
		return guide, nil
	}
	if err := o.agents.UpdateStyleGuide(ctx, r.Agent.ID, guide); err != nil {
		return "", fmt.Errorf("failed to save style guide: %w", err)
	}
	slog.Info("agent style guide updated", "agent", r.Agent.Name)
	return guide, nil
}

// EvolveStream proposes a new play_prompt. Applying it is up to the caller.
func (o *Orchestrator) EvolveStream(ctx context.Context, req AgentRequest, sink Sink) (string, error) {
	msgs, err := o.assembler.Evolve(ctx, req.SceneID, req.Agent)
	if err != nil {
		return "", err
	}
	return o.Stream(ctx, msgs, req.ModelID, EvolveMaxTokens, sink)
}
