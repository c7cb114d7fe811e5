package core

import (
	"unicode/utf8"

	"gwi.com/streak-chat/internal/store"
)

const (
	DefaultSystemPrompt = "You are a helpful, friendly assistant. Answer clearly and concisely, " +
		"and ask a clarifying question when the request is ambiguous."

	acknowledgment = "Understood. I will follow these instructions for the rest of our conversation."

	titleMaxChars = 50
)

// BuildPrompt orders the turns sent for completion: the system framing, a
// fixed acknowledgment, prior history oldest-first, then the new message.
func BuildPrompt(systemPrompt string, history []store.Message, message string) []Turn {
	turns := make([]Turn, 0, len(history)+3)
	turns = append(turns,
		Turn{Role: RoleUser, Text: systemPrompt},
		Turn{Role: RoleModel, Text: acknowledgment},
	)
	for _, m := range history {
		role := RoleUser
		if m.Role == store.RoleAssistant {
			role = RoleModel
		}
		turns = append(turns, Turn{Role: role, Text: m.Content})
	}
	return append(turns, Turn{Role: RoleUser, Text: message})
}

// ConversationTitle is the first 50 characters of message, with "..."
// appended when it was cut.
func ConversationTitle(message string) string {
	if utf8.RuneCountInString(message) <= titleMaxChars {
		return message
	}
	return string([]rune(message)[:titleMaxChars]) + "..."
}
