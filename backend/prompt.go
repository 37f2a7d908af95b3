package backend

import (
	"strings"

	"github.com/hupe1980/llmcouncil/core"
)

// FormatPrompt serializes a conversation into the single prompt string sent
// to a backend. A lone user turn is passed through verbatim; any other
// history becomes a role-labelled transcript separated by blank lines.
func FormatPrompt(turns []core.Turn) string {
	if len(turns) == 1 && turns[0].Role == core.RoleUser {
		return turns[0].Content
	}
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case core.RoleSystem:
			parts = append(parts, "System: "+t.Content)
		case core.RoleAssistant:
			parts = append(parts, "Assistant: "+t.Content)
		default:
			parts = append(parts, "User: "+t.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
