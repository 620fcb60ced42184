package prompt

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/scene-studio/internal/pacing"
	"github.com/easeaico/scene-studio/internal/types"
)

type fakeAgents map[string]types.Agent

func (f fakeAgents) GetByName(ctx context.Context, name string) (types.Agent, bool, error) {
	a, ok := f[name]
	return a, ok, nil
}

type fakeScenes []types.Scene

func (f fakeScenes) ListOrdered(ctx context.Context) ([]types.Scene, error) {
	return f, nil
}

type fakeDialogs map[int][]types.Dialog

func (f fakeDialogs) ListByScene(ctx context.Context, sceneID int) ([]types.Dialog, error) {
	out := make([]types.Dialog, len(f[sceneID]))
	copy(out, f[sceneID])
	return out, nil
}

func (f fakeDialogs) ListCommented(ctx context.Context, aiPersona string) ([]types.Dialog, error) {
	var out []types.Dialog
	for _, ds := range f {
		for _, d := range ds {
			if d.AIPersona == aiPersona && d.Comment != "" {
				out = append(out, d)
			}
		}
	}
	slices.SortFunc(out, func(a, b types.Dialog) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

type fakePrompts map[string]string

func (f fakePrompts) Get(ctx context.Context, name string) (string, bool, error) {
	t, ok := f[name]
	return t, ok, nil
}

type fakeRetriever struct {
	matches []types.EmbeddingMatch
	err     error
	queries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]types.EmbeddingMatch, error) {
	f.queries = append(f.queries, query)
	return f.matches, f.err
}

func fixture() (fakeAgents, fakeScenes, fakeDialogs, fakePrompts) {
	agents := fakeAgents{
		"Mara": {ID: 1, Name: "Mara", Canon: "A smuggler.", State: "Wary.", Goals: "Escape.", StyleGuide: "Short lines.", PlayPrompt: "You are Mara.", CheckerPrompt: "Tighten this."},
		"Theo": {ID: 2, Name: "Theo", Canon: "A harbor guard.", PlayPrompt: "You are Theo."},
	}
	scenes := fakeScenes{
		{SceneID: 10, Name: "Docks", Canon: "Night.", Synopsis: "They meet.", Sortcode: 1, Include: true},
		{SceneID: 11, Name: "Cut", Sortcode: 1.5, Include: false},
		{SceneID: 12, Name: "Tavern", Sortcode: 2, After: "an hour", Include: true},
		{SceneID: 13, Name: "Later", Sortcode: 3, Include: true},
	}
	dialogs := fakeDialogs{
		12: {
			{UserPersona: "Theo", AIPersona: "Mara", UserQuery: "Papers?", AIResponse: "No.", Revised: "Lost them."},
			{UserPersona: "Mara", AIPersona: "Theo", UserQuery: "Let me pass.", AIResponse: "Not tonight."},
		},
	}
	prompts := fakePrompts{
		pacing.PromptHardBeBrief:      "Be brief.",
		pacing.PromptSoftBeBrief:      "Maybe shorter.",
		pacing.PromptHardMatchBrevity: "Match.",
		PromptDefaultAwareness:        "Reflect.",
		PromptDefaultPlanner:          "Plan ahead.",
		PromptEvolvePlayPrompt:        "Evolve it.",
	}
	return agents, scenes, dialogs, prompts
}

func newAssembler(r MemoryRetriever) *Assembler {
	agents, scenes, dialogs, prompts := fixture()
	return NewAssembler(agents, scenes, dialogs, prompts, r)
}

func TestPlayBuildsSystemPromptInOrder(t *testing.T) {
	r := &fakeRetriever{matches: []types.EmbeddingMatch{{Content: "She hid the map."}, {Content: "Theo owes her."}}}
	a := newAssembler(r)

	msgs, err := a.Play(context.Background(), PlayRequest{SceneID: 12, Query: "Why are you here?", Responder: "Mara", Actor: "Theo", Pacing: pacing.BeBriefHard})
	require.NoError(t, err)

	want := "A smuggler." +
		"\n\nYour current state:\n\nWary." +
		"\n\nYour current goals:\n\nEscape." +
		"\n\n--- STYLE GUIDE ---\nShort lines." +
		"\n\nYou are Mara." +
		"\n\n--- RELEVANT MEMORIES ---\n- She hid the map.\n- Theo owes her." +
		"\n\n--- PACING INSTRUCTION ---\nBe brief." +
		"\n\nThis is what you know about the other party:\n\nA harbor guard." +
		"\n\nThe following is the story so far:\n\n" +
		"At the outset, Scene Name: \"Docks\". Canon: \"Night.\". Synopsis: \"They meet.\".\n\n" +
		"Approximately an hour later, Scene Name: \"Tavern\". Canon: \"N/A\". Synopsis: \"N/A\".\n\n"
	require.NotEmpty(t, msgs)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, want, msgs[0].Content)
	assert.Equal(t, []string{"Why are you here?"}, r.queries)

	last := msgs[len(msgs)-1]
	assert.Equal(t, types.NewMessage(types.RoleUser, "Why are you here?"), last)
}

func TestPlayIsDeterministic(t *testing.T) {
	a := newAssembler(&fakeRetriever{matches: []types.EmbeddingMatch{{Content: "m"}}})
	req := PlayRequest{SceneID: 12, Query: "Again?", Responder: "Mara", Actor: "Theo"}

	first, err := a.Play(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Play(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPlayReplaysHistoryRelativeToActor(t *testing.T) {
	a := newAssembler(nil)

	msgs, err := a.Play(context.Background(), PlayRequest{SceneID: 12, Query: "Well?", Responder: "Mara", Actor: "Theo"})
	require.NoError(t, err)

	require.Len(t, msgs, 6)
	assert.Equal(t, types.NewMessage(types.RoleUser, "Papers?"), msgs[1])
	assert.Equal(t, types.NewMessage(types.RoleAssistant, "Lost them."), msgs[2])
	assert.Equal(t, types.NewMessage(types.RoleAssistant, "Let me pass."), msgs[3])
	assert.Equal(t, types.NewMessage(types.RoleUser, "Not tonight."), msgs[4])
}

func TestPlayDropsDuplicateOfNewQuery(t *testing.T) {
	a := newAssembler(nil)

	msgs, err := a.Play(context.Background(), PlayRequest{SceneID: 12, Query: "Let me pass.", Responder: "Mara", Actor: "Theo"})
	require.NoError(t, err)

	require.Len(t, msgs, 4)
	count := 0
	for _, m := range msgs {
		if m.Content == "Let me pass." {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, types.NewMessage(types.RoleUser, "Let me pass."), msgs[3])
}

func TestAutoFlipsPerspectiveToActor(t *testing.T) {
	a := newAssembler(&fakeRetriever{})

	msgs, err := a.Auto(context.Background(), 12, "Mara", "Theo")
	require.NoError(t, err)

	assert.Contains(t, msgs[0].Content, "A smuggler.")
	assert.Contains(t, msgs[0].Content, `Explicitly address your words or actions to "Theo".`)
	assert.Contains(t, msgs[0].Content, "This is what you know about the other party:\n\nA harbor guard.")
	assert.NotContains(t, msgs[0].Content, "RELEVANT MEMORIES")
	assert.NotContains(t, msgs[0].Content, "PACING INSTRUCTION")

	require.Len(t, msgs, 6)
	// Theo asked, Mara answered
	assert.Equal(t, types.RoleUser, msgs[1].Role)
	assert.Equal(t, types.RoleAssistant, msgs[2].Role)
	// Mara asked, Theo answered
	assert.Equal(t, types.RoleAssistant, msgs[3].Role)
	assert.Equal(t, types.RoleUser, msgs[4].Role)
	assert.Equal(t, types.NewMessage(types.RoleUser, "Your next move:"), msgs[5])
}

func TestSameDialogTaggedDifferentlyInPlayAndAuto(t *testing.T) {
	a := newAssembler(nil)

	play, err := a.Play(context.Background(), PlayRequest{SceneID: 12, Query: "x", Responder: "Mara", Actor: "Theo"})
	require.NoError(t, err)
	auto, err := a.Auto(context.Background(), 12, "Mara", "Theo")
	require.NoError(t, err)

	// dialog 2 was queried by Mara
	assert.Equal(t, types.RoleAssistant, play[3].Role)
	assert.Equal(t, types.RoleAssistant, auto[3].Role)
	// dialog 1 was queried by Theo
	assert.Equal(t, types.RoleUser, play[1].Role)
	assert.Equal(t, types.RoleUser, auto[1].Role)
}

func TestEmptyOptionalFieldsAreOmitted(t *testing.T) {
	a := newAssembler(nil)

	msgs, err := a.Play(context.Background(), PlayRequest{SceneID: 10, Query: "Halt.", Responder: "Theo", Actor: "Mara"})
	require.NoError(t, err)

	sys := msgs[0].Content
	assert.NotContains(t, sys, "Your current state:")
	assert.NotContains(t, sys, "Your current goals:")
	assert.NotContains(t, sys, "STYLE GUIDE")
	assert.NotContains(t, sys, "RELEVANT MEMORIES")
	assert.True(t, len(sys) > 0 && sys[0] != '\n')
}

func TestRetrievalFailureDoesNotFailTurn(t *testing.T) {
	a := newAssembler(&fakeRetriever{err: errors.New("db down")})

	msgs, err := a.Play(context.Background(), PlayRequest{SceneID: 10, Query: "Hi", Responder: "Mara", Actor: "Theo"})
	require.NoError(t, err)
	assert.NotContains(t, msgs[0].Content, "RELEVANT MEMORIES")
}

func TestPreconditionFailures(t *testing.T) {
	a := newAssembler(nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  PlayRequest
		kind PreconditionKind
		role string
	}{
		{"empty responder", PlayRequest{Responder: " ", Actor: "Theo"}, MissingName, "responder"},
		{"empty actor", PlayRequest{Responder: "Mara"}, MissingName, "actor"},
		{"unknown responder", PlayRequest{Responder: "Ghost", Actor: "Theo"}, UnknownAgent, "responder"},
		{"unknown actor", PlayRequest{Responder: "Mara", Actor: "Ghost"}, UnknownAgent, "actor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := a.Play(ctx, tc.req)
			assert.Nil(t, msgs)
			var pe *PreconditionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.kind, pe.Kind)
			assert.Equal(t, tc.role, pe.Role)
		})
	}
}

func TestMissingPacingPromptIsPrecondition(t *testing.T) {
	agents, scenes, dialogs, prompts := fixture()
	delete(prompts, pacing.PromptHardMatchBrevity)
	a := NewAssembler(agents, scenes, dialogs, prompts, nil)

	_, err := a.Play(context.Background(), PlayRequest{SceneID: 10, Query: "q", Responder: "Mara", Actor: "Theo", Pacing: pacing.MatchBrevity})
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, MissingPrompt, pe.Kind)
	assert.Contains(t, pe.Error(), pacing.PromptHardMatchBrevity)
}

func TestWonderUsesFixedTwistQuery(t *testing.T) {
	a := newAssembler(nil)

	msgs, err := a.Wonder(context.Background(), 12, "Mara", "Theo")
	require.NoError(t, err)
	assert.Equal(t, wonderQuery, msgs[len(msgs)-1].Content)
	assert.NotContains(t, msgs[0].Content, "PACING INSTRUCTION")
}

func TestRefineAppendsSoftInstruction(t *testing.T) {
	a := newAssembler(nil)

	msgs, err := a.Refine(context.Background(), "Mara", "A long draft.", pacing.BeBriefHard)
	require.NoError(t, err)
	assert.Equal(t, []types.Message{
		types.NewMessage(types.RoleSystem, "Tighten this.\n\nMaybe shorter."),
		types.NewMessage(types.RoleUser, "A long draft."),
	}, msgs)

	msgs, err = a.Refine(context.Background(), "Mara", "Draft.", pacing.None)
	require.NoError(t, err)
	assert.Equal(t, "Tighten this.", msgs[0].Content)

	_, err = a.Refine(context.Background(), "Theo", "Draft.", pacing.None)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, MissingField, pe.Kind)
}

func TestThinkUsesDefaultPromptAndRecentEvents(t *testing.T) {
	a := newAssembler(nil)

	r, err := a.Think(context.Background(), 12, "Theo")
	require.NoError(t, err)

	assert.Equal(t, 2, r.Agent.ID)
	require.Len(t, r.Messages, 2)
	assert.Equal(t, "Reflect.", r.Messages[0].Content)
	assert.Equal(t, "Old State:\nNone\n\nRecent Events:\nUser: Papers?\nAgent: Lost them.\nUser: Let me pass.\nAgent: Not tonight.", r.Messages[1].Content)
}

func TestThinkTreatsBlankStateAsNone(t *testing.T) {
	agents, scenes, dialogs, prompts := fixture()
	theo := agents["Theo"]
	theo.State = "  \n\t "
	agents["Theo"] = theo
	a := NewAssembler(agents, scenes, dialogs, prompts, nil)

	r, err := a.Think(context.Background(), 10, "Theo")
	require.NoError(t, err)
	assert.Equal(t, "Old State:\nNone\n\nRecent Events:\n", r.Messages[1].Content)
}

func TestPlanUsesCurrentGoals(t *testing.T) {
	a := newAssembler(nil)

	r, err := a.Plan(context.Background(), 10, "Mara")
	require.NoError(t, err)
	assert.Equal(t, "Plan ahead.", r.Messages[0].Content)
	assert.Equal(t, "Old Goals:\nEscape.\n\nRecent Events:\n", r.Messages[1].Content)
}

func TestEvolveIncludesContextAndCue(t *testing.T) {
	a := newAssembler(nil)

	msgs, err := a.Evolve(context.Background(), 10, "Theo")
	require.NoError(t, err)

	want := "Current Play Prompt to Evolve:\nYou are Theo.\n\n" +
		"Context for Evolution:\nAgent Name: Theo\nAgent Canon: A harbor guard.\n\n" +
		"Scene Timeline:\nAt the outset, Scene Name: \"Docks\". Canon: \"Night.\". Synopsis: \"They meet.\".\n\n" +
		"New Play Prompt:"
	assert.Equal(t, "Evolve it.", msgs[0].Content)
	assert.Equal(t, want, msgs[1].Content)
}

func TestTimelineSkipsExcludedAndLaterScenes(t *testing.T) {
	a := newAssembler(nil)

	text, err := a.Timeline(context.Background(), 12)
	require.NoError(t, err)
	assert.NotContains(t, text, "Cut")
	assert.NotContains(t, text, "Later")

	text, err = a.Timeline(context.Background(), 13)
	require.NoError(t, err)
	assert.Contains(t, text, "Approximately some time later, Scene Name: \"Later\".")

	text, err = a.Timeline(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestStyleListsFeedbackAndExemplaryDialogs(t *testing.T) {
	agents, scenes, _, prompts := fixture()
	prompts[PromptStylerMain] = "Coach."
	dialogs := fakeDialogs{
		10: {
			{ID: 3, AIPersona: "Mara", UserQuery: "Where to?", AIResponse: "North.", Comment: "Good", Exemplary: true},
			{ID: 4, AIPersona: "Theo", UserQuery: "Halt.", AIResponse: "No.", Comment: "Not his line"},
		},
		12: {
			{ID: 1, AIPersona: "Mara", UserQuery: "Papers?", AIResponse: "I have a long story about papers.", Comment: "Too long"},
			{ID: 2, AIPersona: "Mara", UserQuery: "Name?", AIResponse: "Mara.", Comment: "   "},
		},
	}
	a := NewAssembler(agents, scenes, dialogs, prompts, nil)

	r, err := a.Style(context.Background(), "Mara")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Agent.ID)
	require.Len(t, r.Messages, 2)
	assert.Equal(t, types.RoleSystem, r.Messages[0].Role)
	assert.Equal(t, "Coach.", r.Messages[0].Content)

	want := "Analyze the following dialogs to synthesize the style guide.\n\n" +
		"--- ALL DIALOGS FOR RULE ANALYSIS ---\n" +
		"[Dialog 1]\nAgent Response: \"I have a long story about papers.\"\nUser Comment: \"Too long\"\n\n" +
		"[Dialog 2]\nAgent Response: \"North.\"\nUser Comment: \"Good\"\n\n" +
		"\n--- EXEMPLARY DIALOGS FOR FEW-SHOT EXAMPLES ---\n" +
		"[Exemplary Dialog 1]\nUser Query: \"Where to?\"\nAgent Response: \"North.\"\n\n" +
		"Synthesized Style Guide:"
	assert.Equal(t, types.RoleUser, r.Messages[1].Role)
	assert.Equal(t, want, r.Messages[1].Content)
}

func TestStyleOmitsExemplaryBlockWithoutExemplars(t *testing.T) {
	agents, scenes, _, prompts := fixture()
	prompts[PromptStylerMain] = "Coach."
	dialogs := fakeDialogs{12: {{ID: 1, AIPersona: "Theo", AIResponse: "Halt.", Comment: "Stiff"}}}
	a := NewAssembler(agents, scenes, dialogs, prompts, nil)

	r, err := a.Style(context.Background(), "Theo")
	require.NoError(t, err)
	assert.NotContains(t, r.Messages[1].Content, "EXEMPLARY")
	assert.True(t, strings.HasSuffix(r.Messages[1].Content, "User Comment: \"Stiff\"\n\nSynthesized Style Guide:"))
}

func TestStylePreconditions(t *testing.T) {
	agents, scenes, dialogs, prompts := fixture()
	a := NewAssembler(agents, scenes, dialogs, prompts, nil)

	_, err := a.Style(context.Background(), "Mara")
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, MissingPrompt, pe.Kind)
	assert.Equal(t, PromptStylerMain, pe.Name)

	prompts[PromptStylerMain] = "Coach."
	_, err = a.Style(context.Background(), "Mara")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, MissingFeedback, pe.Kind)
	assert.False(t, pe.NotFound())

	_, err = a.Style(context.Background(), "Nobody")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, UnknownAgent, pe.Kind)
}
