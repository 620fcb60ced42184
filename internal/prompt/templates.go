package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/scene-studio/internal/types"
)

const (
	wonderQuery    = "What is a surprising and dramatic twist that could happen right now?"
	autoFinalCue   = "Your next move:"
	noneText       = "None"
	notAvailable   = "N/A"
	defaultAfter   = "some time"
	recentDialogs  = 2
	sectionBreak   = "\n\n"
	memoryHeading  = "--- RELEVANT MEMORIES ---"
	pacingHeading  = "--- PACING INSTRUCTION ---"
	styleHeading   = "--- STYLE GUIDE ---"
	timelineIntro  = "The following is the story so far:"
	stateHeading   = "Your current state:"
	goalsHeading   = "Your current goals:"
	otherPartyHead = "This is what you know about the other party:"
)

// timeline: one paragraph per included scene, each followed by a blank line.
const timelineTemplateText = `{{range $i, $s := .}}{{if eq $i 0}}At the outset,{{else}}Approximately {{or $s.After "` + defaultAfter + `"}} later,{{end}} Scene Name: "{{$s.Name}}". Canon: "{{or $s.Canon "` + notAvailable + `"}}". Synopsis: "{{or $s.Synopsis "` + notAvailable + `"}}".

{{end}}`

// reflection is the Think/Plan user turn.
const reflectionTemplateText = `Old {{.Label}}:
{{or .Current "` + noneText + `"}}

Recent Events:
{{range $i, $d := .Events}}{{if $i}}
{{end}}User: {{$d.UserQuery}}
Agent: {{$d.ResponseText}}{{end}}`

const evolveTemplateText = `Current Play Prompt to Evolve:
{{.Agent.PlayPrompt}}

Context for Evolution:
Agent Name: {{.Agent.Name}}
{{- if .Agent.Canon}}
Agent Canon: {{.Agent.Canon}}
{{- end}}
{{- if .Agent.State}}
Agent State: {{.Agent.State}}
{{- end}}
{{- if .Agent.Goals}}
Agent Goals: {{.Agent.Goals}}
{{- end}}
{{- if .Timeline}}

Scene Timeline:
{{.Timeline}}
{{- end}}

New Play Prompt:`

// style: every commented dialog feeds the rules, exemplary ones also feed
// the few-shot block.
const styleTemplateText = `Analyze the following dialogs to synthesize the style guide.

--- ALL DIALOGS FOR RULE ANALYSIS ---
{{range $i, $d := .Dialogs}}[Dialog {{inc $i}}]
Agent Response: "{{$d.AIResponse}}"
User Comment: "{{$d.Comment}}"

{{end}}{{if .Exemplary}}
--- EXEMPLARY DIALOGS FOR FEW-SHOT EXAMPLES ---
{{range $i, $d := .Exemplary}}[Exemplary Dialog {{inc $i}}]
User Query: "{{$d.UserQuery}}"
Agent Response: "{{$d.AIResponse}}"

{{end}}{{end}}Synthesized Style Guide:`

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var (
	timelineTemplate   = template.Must(template.New("timeline").Parse(timelineTemplateText))
	reflectionTemplate = template.Must(template.New("reflection").Parse(reflectionTemplateText))
	evolveTemplate     = template.Must(template.New("evolve").Parse(evolveTemplateText))
	styleTemplate      = template.Must(template.New("style").Funcs(funcs).Parse(styleTemplateText))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

type reflectionData struct {
	Label   string
	Current string
	Events  []types.Dialog
}

type evolveData struct {
	Agent    types.Agent
	Timeline string
}

type styleData struct {
	Dialogs   []types.Dialog
	Exemplary []types.Dialog
}
