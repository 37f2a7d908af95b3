package testutil

import (
	"time"

	"github.com/hupe1980/llmcouncil/backend"
)

// ScriptBuilder helps construct mock session scripts with fluent chaining.
// Example:
//
//	s := NewScriptBuilder().Stream("Hel", "lo").Every(10 * time.Millisecond).Build()
type ScriptBuilder struct {
	script backend.Script
}

// NewScriptBuilder creates a builder for a script that completes with an
// empty message unless configured otherwise.
func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{script: backend.Script{Deltas: []string{}}}
}

// Stream appends streamed fragments (chainable).
func (b *ScriptBuilder) Stream(deltas ...string) *ScriptBuilder {
	b.script.Deltas = append(b.script.Deltas, deltas...)
	return b
}

// Every sets the delay before each streamed event (chainable).
func (b *ScriptBuilder) Every(d time.Duration) *ScriptBuilder { b.script.Interval = d; return b }

// After sets the delay before a non-streaming response (chainable).
func (b *ScriptBuilder) After(d time.Duration) *ScriptBuilder { b.script.Delay = d; return b }

// Idle ends the stream with a session-idle event instead of a message (chainable).
func (b *ScriptBuilder) Idle() *ScriptBuilder { b.script.Terminal = backend.EventSessionIdle; return b }

// Fail ends the stream with an error event carrying msg (chainable).
func (b *ScriptBuilder) Fail(msg string) *ScriptBuilder {
	b.script.Terminal = backend.EventError
	b.script.ErrorMessage = msg
	return b
}

// Hang makes the session block until canceled or closed (chainable).
func (b *ScriptBuilder) Hang() *ScriptBuilder { b.script.Hang = true; return b }

// Respond sets the non-streaming content (chainable).
func (b *ScriptBuilder) Respond(content string) *ScriptBuilder {
	b.script.Response = &content
	return b
}

// NoResponse makes the non-streaming exchange return nothing (chainable).
func (b *ScriptBuilder) NoResponse() *ScriptBuilder { b.script.NoResponse = true; return b }

// OpenError makes opening the session fail with err (chainable).
func (b *ScriptBuilder) OpenError(err error) *ScriptBuilder { b.script.OpenErr = err; return b }

// Build returns the configured script.
func (b *ScriptBuilder) Build() backend.Script {
	s := b.script
	s.Deltas = append([]string{}, b.script.Deltas...)
	return s
}
