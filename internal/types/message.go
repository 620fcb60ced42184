package types

import "strings"

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of an assembled prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage returns a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
