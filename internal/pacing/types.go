package pacing

import "fmt"

// Directive is the brevity instruction selected for the next turn.
type Directive int

const (
	None Directive = iota
	BeBriefHard
	MatchBrevity
)

// Wire keys used by callers that pass the directive as text.
const (
	KeyBeBriefHard  = "BE_BRIEF_HARD"
	KeyMatchBrevity = "MATCH_BREVITY"
)

// Stored prompt names holding the instruction text.
const (
	PromptHardBeBrief      = "bi_pacing_hard_be_brief"
	PromptHardMatchBrevity = "bi_pacing_hard_match_brevity"
	PromptSoftBeBrief      = "bi_pacing_soft_be_brief"
	PromptSoftMatchBrevity = "bi_pacing_soft_match_brevity"
)

// String returns the wire key, empty for None.
func (d Directive) String() string {
	switch d {
	case BeBriefHard:
		return KeyBeBriefHard
	case MatchBrevity:
		return KeyMatchBrevity
	default:
		return ""
	}
}

// HardPromptName names the instruction injected into the main generation.
func (d Directive) HardPromptName() string {
	switch d {
	case BeBriefHard:
		return PromptHardBeBrief
	case MatchBrevity:
		return PromptHardMatchBrevity
	default:
		return ""
	}
}

// SoftPromptName names the softer instruction used by the refine pass.
func (d Directive) SoftPromptName() string {
	switch d {
	case BeBriefHard:
		return PromptSoftBeBrief
	case MatchBrevity:
		return PromptSoftMatchBrevity
	default:
		return ""
	}
}

// ParseDirective maps a wire key to a Directive. Empty means None.
func ParseDirective(key string) (Directive, error) {
	switch key {
	case "":
		return None, nil
	case KeyBeBriefHard:
		return BeBriefHard, nil
	case KeyMatchBrevity:
		return MatchBrevity, nil
	default:
		return None, fmt.Errorf("unknown pacing key: %q", key)
	}
}
