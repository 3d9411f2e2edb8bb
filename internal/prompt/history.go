package prompt

import (
	"strings"

	"github.com/mathtutor/chat-gateway/internal/chat"
)

// WindowPolicy bounds how much conversation history a provider sees.
// TurnChars of zero means turns are not truncated.
type WindowPolicy struct {
	Turns     int
	TurnChars int
}

// Latency-optimized providers get a short, truncated window; providers with
// larger context budgets get a longer untruncated one.
var (
	FastWindow  = WindowPolicy{Turns: 2, TurnChars: 400}
	LargeWindow = WindowPolicy{Turns: 20}
)

// Apply returns the most recent turns under the policy, in chat order.
// The input slice is never modified.
func (w WindowPolicy) Apply(history []chat.Message) []chat.Message {
	if w.Turns <= 0 || len(history) == 0 {
		return nil
	}

	start := len(history) - w.Turns
	if start < 0 {
		start = 0
	}

	window := make([]chat.Message, 0, len(history)-start)

	for _, msg := range history[start:] {
		if w.TurnChars > 0 && len(msg.Content) > w.TurnChars {
			msg.Content = msg.Content[:w.TurnChars]
		}

		window = append(window, msg)
	}

	return window
}

// RenderHistory flattens a history window into "Role: content" lines for
// providers that take the conversation as prompt text.
func RenderHistory(history []chat.Message) string {
	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, len(history))

	for _, msg := range history {
		role := "User"
		if msg.Role == chat.RoleAssistant {
			role = "Assistant"
		}

		lines = append(lines, role+": "+msg.Content)
	}

	return strings.Join(lines, "\n")
}
