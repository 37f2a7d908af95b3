package core

import "time"

// DefaultTimeout bounds the streaming or single-response phase of a query
// when the request does not carry its own timeout.
const DefaultTimeout = 120 * time.Second

// Request describes one query to one model. It is treated as immutable once
// handed to an executor.
type Request struct {
	Model     string        `json:"model"`
	Turns     []Turn        `json:"turns"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Streaming bool          `json:"streaming,omitempty"`
}

// EffectiveTimeout returns the request timeout or fallback when unset.
func (r Request) EffectiveTimeout(fallback time.Duration) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeout
}

// Delta is an incremental fragment of a streamed response tagged with the
// model that produced it.
type Delta struct {
	Model string `json:"model"`
	Text  string `json:"delta"`
}

// DeltaFunc receives the fragments of a single query in arrival order.
type DeltaFunc func(text string)

// ObserverFunc receives fragments of every query of a fan-out. It is invoked
// concurrently from several goroutines and must synchronize its own state.
type ObserverFunc func(model, text string)

// Bind partially applies the observer to one model. A nil observer yields a
// nil DeltaFunc.
func (o ObserverFunc) Bind(model string) DeltaFunc {
	if o == nil {
		return nil
	}
	return func(text string) { o(model, text) }
}
