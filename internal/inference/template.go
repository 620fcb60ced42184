package inference

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/scene-studio/internal/types"
)

// ChatML rendering for in-process models. The trailing assistant header
// leaves the model to continue as the assistant.
const chatTemplateText = `{{- range .}}<|im_start|>{{.Role}}
{{.Content}}<|im_end|>
{{end}}<|im_start|>assistant
`

// ChatStopWord ends a ChatML assistant turn.
const ChatStopWord = "<|im_end|>"

var chatTemplate = template.Must(template.New("chat").Parse(chatTemplateText))

func renderChatPrompt(messages []types.Message) (string, error) {
	var buf bytes.Buffer
	if err := chatTemplate.Execute(&buf, messages); err != nil {
		return "", fmt.Errorf("failed to render chat prompt: %w", err)
	}
	return buf.String(), nil
}
