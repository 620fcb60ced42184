// Package prompt assembles the ordered message lists sent to the language
// model for each interaction mode.
package prompt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/easeaico/scene-studio/internal/pacing"
	"github.com/easeaico/scene-studio/internal/types"
)

const (
	PromptDefaultAwareness = "bi_default_awareness_prompt"
	PromptDefaultPlanner   = "bi_default_planner_prompt"
	PromptEvolvePlayPrompt = "bi_evolve_play_prompt"
	PromptStylerMain       = "styler_main_prompt"
)

type AgentReader interface {
	GetByName(ctx context.Context, name string) (types.Agent, bool, error)
}

type SceneReader interface {
	ListOrdered(ctx context.Context) ([]types.Scene, error)
}

type DialogReader interface {
	ListByScene(ctx context.Context, sceneID int) ([]types.Dialog, error)
	ListCommented(ctx context.Context, aiPersona string) ([]types.Dialog, error)
}

type PromptReader interface {
	Get(ctx context.Context, name string) (string, bool, error)
}

// MemoryRetriever returns stored content relevant to a query, nearest first.
type MemoryRetriever interface {
	Retrieve(ctx context.Context, query string) ([]types.EmbeddingMatch, error)
}

// Assembler builds prompts from stored agents, scenes and dialogs.
// It never calls the language model itself.
type Assembler struct {
	agents    AgentReader
	scenes    SceneReader
	dialogs   DialogReader
	prompts   PromptReader
	retriever MemoryRetriever
}

// NewAssembler creates an Assembler. retriever may be nil to disable memories.
func NewAssembler(agents AgentReader, scenes SceneReader, dialogs DialogReader, prompts PromptReader, retriever MemoryRetriever) *Assembler {
	return &Assembler{
		agents:    agents,
		scenes:    scenes,
		dialogs:   dialogs,
		prompts:   prompts,
		retriever: retriever,
	}
}

// PlayRequest is a turn in which Actor speaks to Responder.
type PlayRequest struct {
	SceneID   int
	Query     string
	Responder string
	Actor     string
	Pacing    pacing.Directive
}

// Play builds the responder's prompt for a new actor query.
func (a *Assembler) Play(ctx context.Context, req PlayRequest) ([]types.Message, error) {
	responder, actor, err := a.resolvePair(ctx, req.Responder, req.Actor)
	if err != nil {
		return nil, err
	}

	memories := a.memories(ctx, req.Query)
	instruction, err := a.pacingInstruction(ctx, req.Pacing.HardPromptName())
	if err != nil {
		return nil, err
	}
	timeline, err := a.Timeline(ctx, req.SceneID)
	if err != nil {
		return nil, err
	}
	dialogs, err := a.dialogs.ListByScene(ctx, req.SceneID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	writePersona(&sb, responder)
	if len(memories) > 0 {
		sb.WriteString(sectionBreak + memoryHeading)
		for _, m := range memories {
			sb.WriteString("\n- " + m.Content)
		}
	}
	if instruction != "" {
		sb.WriteString(sectionBreak + pacingHeading + "\n" + instruction)
	}
	writeCounterpart(&sb, otherPartyHead, actor)
	writeTimeline(&sb, timeline)

	// the newest turn may already be stored; do not replay it twice
	if n := len(dialogs); n > 0 && dialogs[n-1].UserQuery == req.Query {
		dialogs = dialogs[:n-1]
	}

	msgs := []types.Message{types.NewMessage(types.RoleSystem, strings.TrimLeft(sb.String(), "\n"))}
	for _, d := range dialogs {
		msgs = append(msgs,
			types.NewMessage(roleFor(d.UserPersona == req.Actor, types.RoleUser), d.UserQuery),
			types.NewMessage(roleFor(d.AIPersona == req.Responder, types.RoleAssistant), d.ResponseText()),
		)
	}
	msgs = append(msgs, types.NewMessage(types.RoleUser, req.Query))
	return msgs, nil
}

// Wonder is Play with a fixed plot-twist query and no pacing.
func (a *Assembler) Wonder(ctx context.Context, sceneID int, responder, actor string) ([]types.Message, error) {
	return a.Play(ctx, PlayRequest{
		SceneID:   sceneID,
		Query:     wonderQuery,
		Responder: responder,
		Actor:     actor,
	})
}

// Auto builds the actor's own prompt so the model can speak for the actor.
func (a *Assembler) Auto(ctx context.Context, sceneID int, actorName, responderName string) ([]types.Message, error) {
	responder, actor, err := a.resolvePair(ctx, responderName, actorName)
	if err != nil {
		return nil, err
	}
	timeline, err := a.Timeline(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	dialogs, err := a.dialogs.ListByScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	writePersona(&sb, actor)
	sb.WriteString(sectionBreak + `Explicitly address your words or actions to "` + responder.Name + `".`)
	writeCounterpart(&sb, otherPartyHead, responder)
	writeTimeline(&sb, timeline)

	msgs := []types.Message{types.NewMessage(types.RoleSystem, strings.TrimLeft(sb.String(), "\n"))}
	for _, d := range dialogs {
		msgs = append(msgs,
			types.NewMessage(roleFor(d.UserPersona == actorName, types.RoleAssistant), d.UserQuery),
			types.NewMessage(roleFor(d.AIPersona == actorName, types.RoleAssistant), d.ResponseText()),
		)
	}
	msgs = append(msgs, types.NewMessage(types.RoleUser, autoFinalCue))
	return msgs, nil
}

// Refine builds the checker pass over a draft response.
func (a *Assembler) Refine(ctx context.Context, agentName, draft string, directive pacing.Directive) ([]types.Message, error) {
	agent, err := a.resolve(ctx, "agent", agentName)
	if err != nil {
		return nil, err
	}
	if !hasText(agent.CheckerPrompt) {
		return nil, &PreconditionError{Kind: MissingField, Role: "agent", Name: "checker_prompt"}
	}

	system := agent.CheckerPrompt
	instruction, err := a.pacingInstruction(ctx, directive.SoftPromptName())
	if err != nil {
		return nil, err
	}
	if instruction != "" {
		system += sectionBreak + instruction
	}
	return []types.Message{
		types.NewMessage(types.RoleSystem, system),
		types.NewMessage(types.RoleUser, draft),
	}, nil
}

// Reflection is a Think, Plan or Style prompt together with the agent it updates.
type Reflection struct {
	Agent    types.Agent
	Messages []types.Message
}

// Think builds the prompt that rewrites the agent's state.
func (a *Assembler) Think(ctx context.Context, sceneID int, agentName string) (Reflection, error) {
	return a.reflect(ctx, sceneID, agentName, "State", PromptDefaultAwareness,
		func(ag types.Agent) (string, string) { return ag.AwarenessPrompt, ag.State })
}

// Plan builds the prompt that rewrites the agent's goals.
func (a *Assembler) Plan(ctx context.Context, sceneID int, agentName string) (Reflection, error) {
	return a.reflect(ctx, sceneID, agentName, "Goals", PromptDefaultPlanner,
		func(ag types.Agent) (string, string) { return ag.PlannerPrompt, ag.Goals })
}

func (a *Assembler) reflect(ctx context.Context, sceneID int, agentName, label, fallback string, pick func(types.Agent) (string, string)) (Reflection, error) {
	agent, err := a.resolve(ctx, "agent", agentName)
	if err != nil {
		return Reflection{}, err
	}
	system, current := pick(agent)
	if !hasText(current) {
		current = ""
	}
	if !hasText(system) {
		if system, err = a.requirePrompt(ctx, fallback); err != nil {
			return Reflection{}, err
		}
	}

	dialogs, err := a.dialogs.ListByScene(ctx, sceneID)
	if err != nil {
		return Reflection{}, err
	}
	if len(dialogs) > recentDialogs {
		dialogs = dialogs[len(dialogs)-recentDialogs:]
	}
	user, err := render(reflectionTemplate, reflectionData{Label: label, Current: current, Events: dialogs})
	if err != nil {
		return Reflection{}, err
	}
	return Reflection{
		Agent: agent,
		Messages: []types.Message{
			types.NewMessage(types.RoleSystem, system),
			types.NewMessage(types.RoleUser, user),
		},
	}, nil
}

// Style builds the prompt that synthesizes an agent's style guide from the
// reviewer comments on its answers. The returned agent is the one to update.
func (a *Assembler) Style(ctx context.Context, agentName string) (Reflection, error) {
	agent, err := a.resolve(ctx, "agent", agentName)
	if err != nil {
		return Reflection{}, err
	}
	system, err := a.requirePrompt(ctx, PromptStylerMain)
	if err != nil {
		return Reflection{}, err
	}
	commented, err := a.dialogs.ListCommented(ctx, agent.Name)
	if err != nil {
		return Reflection{}, err
	}

	var data styleData
	for _, d := range commented {
		if !hasText(d.Comment) {
			continue
		}
		data.Dialogs = append(data.Dialogs, d)
		if d.Exemplary {
			data.Exemplary = append(data.Exemplary, d)
		}
	}
	if len(data.Dialogs) == 0 {
		return Reflection{}, &PreconditionError{Kind: MissingFeedback, Role: "agent", Name: agent.Name}
	}

	user, err := render(styleTemplate, data)
	if err != nil {
		return Reflection{}, err
	}
	return Reflection{
		Agent: agent,
		Messages: []types.Message{
			types.NewMessage(types.RoleSystem, system),
			types.NewMessage(types.RoleUser, user),
		},
	}, nil
}

// Evolve builds the prompt that proposes a replacement play_prompt.
func (a *Assembler) Evolve(ctx context.Context, sceneID int, agentName string) ([]types.Message, error) {
	agent, err := a.resolve(ctx, "responder", agentName)
	if err != nil {
		return nil, err
	}
	system, err := a.requirePrompt(ctx, PromptEvolvePlayPrompt)
	if err != nil {
		return nil, err
	}
	timeline, err := a.Timeline(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	user, err := render(evolveTemplate, evolveData{Agent: agent, Timeline: strings.TrimSpace(timeline)})
	if err != nil {
		return nil, err
	}
	return []types.Message{
		types.NewMessage(types.RoleSystem, system),
		types.NewMessage(types.RoleUser, user),
	}, nil
}

// Timeline narrates every included scene up to and including sceneID in
// sortcode order. An unknown scene yields an empty timeline.
func (a *Assembler) Timeline(ctx context.Context, sceneID int) (string, error) {
	scenes, err := a.scenes.ListOrdered(ctx)
	if err != nil {
		return "", err
	}

	var current *types.Scene
	for i := range scenes {
		if scenes[i].SceneID == sceneID {
			current = &scenes[i]
			break
		}
	}
	if current == nil {
		return "", nil
	}

	var relevant []types.Scene
	for _, s := range scenes {
		if s.Include && s.Sortcode <= current.Sortcode {
			relevant = append(relevant, s)
		}
	}
	if len(relevant) == 0 {
		return "", nil
	}
	return render(timelineTemplate, relevant)
}

func (a *Assembler) resolvePair(ctx context.Context, responderName, actorName string) (types.Agent, types.Agent, error) {
	if !hasText(responderName) {
		return types.Agent{}, types.Agent{}, &PreconditionError{Kind: MissingName, Role: "responder"}
	}
	if !hasText(actorName) {
		return types.Agent{}, types.Agent{}, &PreconditionError{Kind: MissingName, Role: "actor"}
	}
	responder, err := a.resolve(ctx, "responder", responderName)
	if err != nil {
		return types.Agent{}, types.Agent{}, err
	}
	actor, err := a.resolve(ctx, "actor", actorName)
	if err != nil {
		return types.Agent{}, types.Agent{}, err
	}
	return responder, actor, nil
}

func (a *Assembler) resolve(ctx context.Context, role, name string) (types.Agent, error) {
	if !hasText(name) {
		return types.Agent{}, &PreconditionError{Kind: MissingName, Role: role}
	}
	agent, ok, err := a.agents.GetByName(ctx, name)
	if err != nil {
		return types.Agent{}, err
	}
	if !ok {
		return types.Agent{}, &PreconditionError{Kind: UnknownAgent, Role: role, Name: name}
	}
	return agent, nil
}

func (a *Assembler) requirePrompt(ctx context.Context, name string) (string, error) {
	text, ok, err := a.prompts.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok || !hasText(text) {
		return "", &PreconditionError{Kind: MissingPrompt, Name: name}
	}
	return text, nil
}

// pacingInstruction resolves a directive prompt; an empty name means no directive.
func (a *Assembler) pacingInstruction(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	return a.requirePrompt(ctx, name)
}

// memories never fails the turn; retrieval errors only cost the memory block.
func (a *Assembler) memories(ctx context.Context, query string) []types.EmbeddingMatch {
	if a.retriever == nil || !hasText(query) {
		return nil
	}
	matches, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		slog.Warn("memory retrieval failed, continuing without memories", "error", err)
		return nil
	}
	return matches
}

func writePersona(sb *strings.Builder, agent types.Agent) {
	if hasText(agent.Canon) {
		sb.WriteString(agent.Canon)
	}
	if hasText(agent.State) {
		sb.WriteString(sectionBreak + stateHeading + sectionBreak + agent.State)
	}
	if hasText(agent.Goals) {
		sb.WriteString(sectionBreak + goalsHeading + sectionBreak + agent.Goals)
	}
	if hasText(agent.StyleGuide) {
		sb.WriteString(sectionBreak + styleHeading + "\n" + agent.StyleGuide)
	}
	if hasText(agent.PlayPrompt) {
		sb.WriteString(sectionBreak + agent.PlayPrompt)
	}
}

func writeCounterpart(sb *strings.Builder, heading string, other types.Agent) {
	if hasText(other.Canon) {
		sb.WriteString(sectionBreak + heading + sectionBreak + other.Canon)
	}
}

func writeTimeline(sb *strings.Builder, timeline string) {
	sb.WriteString(sectionBreak + timelineIntro + sectionBreak + timeline)
}

// roleFor tags a turn with own when the speaker is the prompt's own side.
func roleFor(own bool, ownRole types.Role) types.Role {
	if own {
		return ownRole
	}
	if ownRole == types.RoleUser {
		return types.RoleAssistant
	}
	return types.RoleUser
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
