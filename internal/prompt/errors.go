package prompt

import "fmt"

// PreconditionKind classifies why a prompt could not be assembled.
type PreconditionKind int

const (
	// MissingName: a required persona name was empty.
	MissingName PreconditionKind = iota
	// UnknownAgent: a persona name resolved to no stored agent.
	UnknownAgent
	// MissingPrompt: a required stored prompt text is absent.
	MissingPrompt
	// MissingField: the agent exists but lacks a field the mode needs.
	MissingField
	// MissingFeedback: the agent has no commented dialogs to learn a style from.
	MissingFeedback
)

// PreconditionError is returned before any backend call when inputs
// cannot produce a prompt.
type PreconditionError struct {
	Kind PreconditionKind
	// Role is the persona's part in the request, e.g. "responder" or "actor".
	Role string
	// Name is the missing entity: persona, prompt or field name.
	Name string
}

func (e *PreconditionError) Error() string {
	switch e.Kind {
	case MissingName:
		return fmt.Sprintf("%s persona name is empty", e.Role)
	case UnknownAgent:
		return fmt.Sprintf("%s persona %q not found", e.Role, e.Name)
	case MissingPrompt:
		return fmt.Sprintf("prompt %q not found", e.Name)
	case MissingField:
		return fmt.Sprintf("%s persona has no %s", e.Role, e.Name)
	case MissingFeedback:
		return fmt.Sprintf("%s persona %q has no commented dialogs", e.Role, e.Name)
	default:
		return "prompt precondition failed"
	}
}

// NotFound reports whether the failure is a lookup miss rather than bad input.
func (e *PreconditionError) NotFound() bool {
	return e.Kind != MissingName && e.Kind != MissingFeedback
}
