package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/scene-studio/internal/types"
)

func TestCountTokensEmpty(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 0, CountMessages(nil))
}

func TestCountTokensKnownText(t *testing.T) {
	// "hello world" is two tokens in cl100k_base.
	assert.Equal(t, 2, CountTokens("hello world"))
}

func TestCountTokensStable(t *testing.T) {
	text := "At the outset, Scene Name: \"Harbor\". Canon: \"Fog rolls in\"."
	first := CountTokens(text)
	require.Greater(t, first, 0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, CountTokens(text))
	}
}

func TestCountMessagesJoinsContent(t *testing.T) {
	messages := []types.Message{
		types.NewMessage(types.RoleSystem, "You are Mira."),
		types.NewMessage(types.RoleUser, "Where is the key?"),
	}
	assert.Equal(t, CountTokens("You are Mira.\nWhere is the key?"), CountMessages(messages))
}
