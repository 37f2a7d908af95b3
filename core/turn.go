package core

import (
	"fmt"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem marks system instructions.
	RoleSystem Role = "system"
	// RoleUser marks user input.
	RoleUser Role = "user"
	// RoleAssistant marks previous model output.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn is a single role-tagged entry of the chat history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserTurn is a convenience constructor for a user turn.
func NewUserTurn(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// NewSystemTurn is a convenience constructor for a system turn.
func NewSystemTurn(content string) Turn { return Turn{Role: RoleSystem, Content: content} }

// NewAssistantTurn is a convenience constructor for an assistant turn.
func NewAssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// ValidateTurns rejects an empty history and turns with unknown roles.
func ValidateTurns(turns []Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("%w: conversation has no turns", ErrInvalidInput)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalidInput, i, t.Role)
		}
	}
	return nil
}

// NormalizeModels trims, deduplicates and validates a model id list while
// preserving first-seen order.
func NormalizeModels(models []string) ([]string, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models requested", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, fmt.Errorf("%w: empty model identifier", ErrInvalidInput)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}
