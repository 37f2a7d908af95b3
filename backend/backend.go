package backend

import (
	"context"
	"fmt"

	"github.com/hupe1980/llmcouncil/core"
)

// EventType tags an event emitted by a streaming session.
type EventType string

const (
	// EventMessageDelta carries an incremental text fragment.
	EventMessageDelta EventType = "assistant.message_delta"
	// EventMessage signals the end of a successful response.
	EventMessage EventType = "assistant.message"
	// EventSessionIdle is an alternate end-of-stream signal.
	EventSessionIdle EventType = "session.idle"
	// EventError carries a failure reason and terminates the stream.
	EventError EventType = "error"
)

// Terminal reports whether the event ends a stream.
func (t EventType) Terminal() bool {
	return t == EventMessage || t == EventSessionIdle || t == EventError
}

// Event is a single protocol event of a streaming session.
type Event struct {
	Type    EventType `json:"type"`
	Delta   string    `json:"delta,omitempty"`   // EventMessageDelta
	Content string    `json:"content,omitempty"` // EventMessage (full text, informational)
	Message string    `json:"message,omitempty"` // EventError
}

// DeltaEvent builds an EventMessageDelta.
func DeltaEvent(text string) Event { return Event{Type: EventMessageDelta, Delta: text} }

// MessageEvent builds an EventMessage.
func MessageEvent(content string) Event { return Event{Type: EventMessage, Content: content} }

// ErrorEvent builds an EventError.
func ErrorEvent(msg string) Event { return Event{Type: EventError, Message: msg} }

// Message is the complete response of a non-streaming exchange.
type Message struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
}

// SessionConfig scopes a session to one model.
type SessionConfig struct {
	Model     string
	Streaming bool
}

// ModelInfo describes a model offered by a backend.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider"`
}

// Session is one ephemeral connection to one model. It is used by exactly
// one query and released with Close.
type Session interface {
	// ID returns the backend-side session identifier.
	ID() string

	// Stream transmits the prompt and returns the ordered event sequence. The
	// channel is closed after a terminal event, on context cancellation or
	// when the session is closed.
	Stream(ctx context.Context, prompt string) (<-chan Event, error)

	// SendAndWait performs a single blocking exchange. A nil message without
	// error means the backend returned nothing.
	SendAndWait(ctx context.Context, prompt string) (*Message, error)

	// Close releases the session.
	Close() error
}

// Client opens sessions against a model service.
type Client interface {
	Open(ctx context.Context, cfg SessionConfig) (Session, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Emit delivers ev on out unless ctx is done first. It reports whether the
// event was delivered.
func Emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// Unavailable builds the error returned by Open when no connection exists.
func Unavailable(provider, reason string) error {
	return fmt.Errorf("%s: %w: %s", provider, core.ErrBackendUnavailable, reason)
}
