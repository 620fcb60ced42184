// Package pacing steers response length from the balance of the previous turn.
package pacing

import (
	"unicode/utf8"

	"github.com/easeaico/scene-studio/internal/types"
)

const (
	hardResponseLimit  = 450
	hardRatioLimit     = 5
	briefQueryLimit    = 60
	briefResponseLimit = 200
)

// Decide picks the directive for the next generation from the previous turn.
func Decide(state types.PacingState) Directive {
	query := state.LastUserQueryLength
	if query < 1 {
		query = 1
	}
	ratio := float64(state.LastAgentResponseLength) / float64(query)

	switch {
	case state.LastAgentResponseLength > hardResponseLimit || ratio > hardRatioLimit:
		return BeBriefHard
	case state.LastUserQueryLength < briefQueryLimit && state.LastAgentResponseLength > briefResponseLimit:
		return MatchBrevity
	default:
		return None
	}
}

// Advance returns the state for the next turn. finalResponse must be the text
// the user ends up with (after refinement, if any).
func Advance(userQuery, finalResponse string) types.PacingState {
	return types.PacingState{
		LastUserQueryLength:     utf8.RuneCountInString(userQuery),
		LastAgentResponseLength: utf8.RuneCountInString(finalResponse),
	}
}
