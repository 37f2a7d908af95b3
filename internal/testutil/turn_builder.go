package testutil

import "github.com/hupe1980/llmcouncil/core"

// TurnBuilder provides a fluent helper for constructing conversations in tests.
// Example:
//
//	turns := NewTurnBuilder().System("be brief").User("hi").Assistant("hello").User("bye").Build()
type TurnBuilder struct {
	turns []core.Turn
}

// NewTurnBuilder creates an empty conversation builder.
func NewTurnBuilder() *TurnBuilder { return &TurnBuilder{} }

// System appends a system turn (chainable).
func (b *TurnBuilder) System(t string) *TurnBuilder { return b.add(core.NewSystemTurn(t)) }

// User appends a user turn (chainable).
func (b *TurnBuilder) User(t string) *TurnBuilder { return b.add(core.NewUserTurn(t)) }

// Assistant appends an assistant turn (chainable).
func (b *TurnBuilder) Assistant(t string) *TurnBuilder { return b.add(core.NewAssistantTurn(t)) }

func (b *TurnBuilder) add(t core.Turn) *TurnBuilder {
	b.turns = append(b.turns, t)
	return b
}

// Build returns a copy of the accumulated turns.
func (b *TurnBuilder) Build() []core.Turn {
	return append([]core.Turn(nil), b.turns...)
}
