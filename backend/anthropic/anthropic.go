// Package anthropic provides a backend.Client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
)

// Options configures the Anthropic client adapter (API key, base URL, max
// tokens, temperature).
type Options struct {
	APIKey         string
	BaseURL        string
	MaxTokens      int64
	Temperature    *float64
	RequestOptions []option.RequestOption
}

// Client opens Anthropic-backed sessions.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// NewClient creates a new adapter using the official client. The API key
// falls back to ANTHROPIC_API_KEY.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption{}, opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK creates a new adapter from an existing client.
func NewClientFromSDK(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{MaxTokens: 4096}
}

// Open implements backend.Client.
func (c *Client) Open(_ context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	if c == nil || c.client == nil {
		return nil, backend.Unavailable("anthropic", "client not initialized")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	return &session{id: core.NewID(), model: cfg.Model, client: c.client, opts: c.opts}, nil
}

// ListModels implements backend.Client.
func (c *Client) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	if c == nil || c.client == nil {
		return nil, backend.Unavailable("anthropic", "client not initialized")
	}
	var out []backend.ModelInfo
	pager := c.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	for pager.Next() {
		m := pager.Current()
		out = append(out, backend.ModelInfo{ID: m.ID, Name: m.DisplayName, Provider: "anthropic"})
	}
	if err := pager.Err(); err != nil {
		return out, fmt.Errorf("anthropic list models: %w", err)
	}
	return out, nil
}

type session struct {
	id     string
	model  string
	client *anthropic.Client
	opts   Options

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (s *session) ID() string { return s.id }

func (s *session) buildParams(prompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.opts.MaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if s.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*s.opts.Temperature)
	}
	return params
}

func (s *session) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("anthropic: session %s is closed", s.id)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return ctx, nil
}

// Stream implements backend.Session. Text deltas are forwarded as they
// arrive; message_stop terminates the stream.
func (s *session) Stream(ctx context.Context, prompt string) (<-chan backend.Event, error) {
	ctx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan backend.Event, 32)
	go func() {
		defer close(out)
		stream := s.client.Messages.NewStreaming(ctx, s.buildParams(prompt))
		defer stream.Close()
		var text strings.Builder
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
					text.WriteString(d.Text)
					if !backend.Emit(ctx, out, backend.DeltaEvent(d.Text)) {
						return
					}
				}
			case anthropic.MessageStopEvent:
				backend.Emit(ctx, out, backend.MessageEvent(text.String()))
				return
			}
		}
		if err := stream.Err(); err != nil {
			backend.Emit(ctx, out, backend.ErrorEvent(fmt.Sprintf("anthropic streaming error: %v", err)))
			return
		}
		backend.Emit(ctx, out, backend.Event{Type: backend.EventSessionIdle})
	}()
	return out, nil
}

// SendAndWait implements backend.Session.
func (s *session) SendAndWait(ctx context.Context, prompt string) (*backend.Message, error) {
	ctx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Messages.New(ctx, s.buildParams(prompt))
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	if resp == nil {
		return nil, nil
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if len(resp.Content) == 0 {
		return nil, nil
	}
	return &backend.Message{ID: resp.ID, Content: text.String()}, nil
}

// Close implements backend.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
