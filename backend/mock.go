package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/llmcouncil/core"
)

// Script describes how a MockClient session answers a prompt.
type Script struct {
	Deltas       []string      // fragments emitted in order when streaming
	Terminal     EventType     // terminal event after the deltas (default EventMessage)
	ErrorMessage string        // message of an EventError terminal
	Interval     time.Duration // delay before each streamed event
	Delay        time.Duration // delay before a non-streaming response
	Hang         bool          // never finish; block until cancellation or Close
	Response     *string       // non-streaming content (defaults to the joined deltas or an echo)
	NoResponse   bool          // non-streaming exchange returns nothing
	OpenErr      error         // returned by Open
	SendErr      error         // returned by Stream / SendAndWait
	Panic        string        // SendAndWait panics with this value
}

// MockClient is a lightweight in-memory Client useful for tests, examples
// and offline runs. Models without a script echo the prompt.
type MockClient struct {
	mu      sync.Mutex
	models  []ModelInfo
	scripts map[string]Script
	opened  map[string]int
	closed  map[string]int
	listErr error
}

// NewMockClient constructs a MockClient offering the given model ids. With no
// ids every model is accepted.
func NewMockClient(models ...string) *MockClient {
	c := &MockClient{
		scripts: make(map[string]Script),
		opened:  make(map[string]int),
		closed:  make(map[string]int),
	}
	for _, m := range models {
		c.models = append(c.models, ModelInfo{ID: m, Name: m, Provider: "mock"})
	}
	return c
}

// SetScript registers the behavior of sessions opened for model.
func (c *MockClient) SetScript(model string, s Script) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[model] = s
	return c
}

// SetListError makes ListModels fail.
func (c *MockClient) SetListError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

// Opened returns how many sessions were opened for model.
func (c *MockClient) Opened(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened[model]
}

// Closed returns how many times Close was called on sessions of model.
func (c *MockClient) Closed(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed[model]
}

// Open implements Client.
func (c *MockClient) Open(_ context.Context, cfg SessionConfig) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	script := c.scripts[cfg.Model]
	if script.OpenErr != nil {
		return nil, script.OpenErr
	}
	if !c.knowsLocked(cfg.Model) {
		return nil, fmt.Errorf("model %q not found", cfg.Model)
	}
	c.opened[cfg.Model]++
	return &mockSession{
		id:     core.NewID(),
		model:  cfg.Model,
		client: c,
		script: script,
		done:   make(chan struct{}),
	}, nil
}

func (c *MockClient) knowsLocked(model string) bool {
	if len(c.models) == 0 {
		return true
	}
	if _, ok := c.scripts[model]; ok {
		return true
	}
	for _, m := range c.models {
		if m.ID == model {
			return true
		}
	}
	return false
}

// ListModels implements Client.
func (c *MockClient) ListModels(context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]ModelInfo, len(c.models))
	copy(out, c.models)
	return out, nil
}

type mockSession struct {
	id        string
	model     string
	client    *MockClient
	script    Script
	done      chan struct{}
	closeOnce sync.Once
}

func (s *mockSession) ID() string { return s.id }

// events expands the script into the streamed event sequence.
func (s *mockSession) events(prompt string) []Event {
	deltas := s.script.Deltas
	if deltas == nil && s.script.Response == nil {
		for _, r := range echo(prompt) {
			deltas = append(deltas, string(r))
		}
	}
	evs := make([]Event, 0, len(deltas)+1)
	for _, d := range deltas {
		evs = append(evs, DeltaEvent(d))
	}
	if s.script.Hang {
		return evs
	}
	switch s.script.Terminal {
	case EventError:
		evs = append(evs, ErrorEvent(s.script.ErrorMessage))
	case EventSessionIdle:
		evs = append(evs, Event{Type: EventSessionIdle})
	default:
		evs = append(evs, MessageEvent(strings.Join(deltas, "")))
	}
	return evs
}

func (s *mockSession) Stream(ctx context.Context, prompt string) (<-chan Event, error) {
	if s.script.SendErr != nil {
		return nil, s.script.SendErr
	}
	out := make(chan Event, 16)
	evs := s.events(prompt)
	go func() {
		defer close(out)
		for _, ev := range evs {
			if !s.wait(ctx, s.script.Interval) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case out <- ev:
			}
		}
		if s.script.Hang {
			s.wait(ctx, -1)
		}
	}()
	return out, nil
}

func (s *mockSession) SendAndWait(ctx context.Context, prompt string) (*Message, error) {
	if s.script.Panic != "" {
		panic(s.script.Panic)
	}
	if s.script.SendErr != nil {
		return nil, s.script.SendErr
	}
	d := s.script.Delay
	if s.script.Hang {
		d = -1
	}
	if !s.wait(ctx, d) {
		return nil, ctx.Err()
	}
	if s.script.NoResponse {
		return nil, nil
	}
	content := echo(prompt)
	switch {
	case s.script.Response != nil:
		content = *s.script.Response
	case s.script.Deltas != nil:
		content = strings.Join(s.script.Deltas, "")
	}
	return &Message{ID: core.NewID(), Content: content}, nil
}

// wait sleeps for d (forever when d < 0) and reports false when interrupted.
func (s *mockSession) wait(ctx context.Context, d time.Duration) bool {
	if d == 0 {
		return true
	}
	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case <-timer:
		return true
	}
}

func (s *mockSession) Close() error {
	s.client.mu.Lock()
	s.client.closed[s.model]++
	s.client.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func echo(prompt string) string { return fmt.Sprintf("Mock response to: %s", prompt) }
