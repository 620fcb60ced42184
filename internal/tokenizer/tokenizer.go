// Package tokenizer counts tokens with one fixed BPE scheme (cl100k_base) so
// budget checks are stable across backends and models.
package tokenizer

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/easeaico/scene-studio/internal/types"
)

const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		// offline loader: the BPE ranks ship with the binary
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
		enc, encErr = tiktoken.GetEncoding(encodingName)
		if encErr != nil {
			slog.Error("failed to load tokenizer", "encoding", encodingName, "error", encErr)
			return
		}
		slog.Debug("tokenizer loaded", "encoding", encodingName)
	})
	return enc, encErr
}

// CountTokens returns the number of cl100k_base tokens in text.
// Empty input returns 0. If the encoding cannot be loaded the count
// falls back to a ~4 chars/token estimate.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e, err := encoding()
	if err != nil {
		return estimate(text)
	}
	return len(e.Encode(text, nil, nil))
}

// CountMessages counts the message contents joined by newlines.
func CountMessages(messages []types.Message) int {
	if len(messages) == 0 {
		return 0
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return CountTokens(strings.Join(parts, "\n"))
}

func estimate(text string) int {
	return (len(text) + 3) / 4
}
