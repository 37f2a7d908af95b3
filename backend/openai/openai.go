// Package openai provides an implementation of backend.Client using the OpenAI
// Chat Completions API (streaming and non-streaming). Each session sends the
// formatted prompt as a single user message and translates completion chunks
// into backend events.
package openai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI client adapter.
type Options struct {
	APIKey              string
	BaseURL             string
	Temperature         *float64 // omitted when nil; reasoning models reject non-default values
	MaxCompletionTokens int64
	RequestOptions      []option.RequestOption
}

// Client opens OpenAI-backed sessions.
type Client struct {
	client *openai.Client
	opts   Options
}

// NewClient creates a new adapter using the official client. The API key
// falls back to OPENAI_API_KEY.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	reqOpts := append([]option.RequestOption{}, opts.RequestOptions...)
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK creates a new adapter from an existing client.
func NewClientFromSDK(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{MaxCompletionTokens: 4096}
}

// Open implements backend.Client.
func (c *Client) Open(_ context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	if c == nil || c.client == nil {
		return nil, backend.Unavailable("openai", "client not initialized")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	return &session{id: core.NewID(), model: cfg.Model, client: c.client, opts: c.opts}, nil
}

// ListModels implements backend.Client.
func (c *Client) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	if c == nil || c.client == nil {
		return nil, backend.Unavailable("openai", "client not initialized")
	}
	var out []backend.ModelInfo
	pager := c.client.Models.ListAutoPaging(ctx)
	for pager.Next() {
		m := pager.Current()
		out = append(out, backend.ModelInfo{ID: m.ID, Name: m.ID, Provider: "openai"})
	}
	if err := pager.Err(); err != nil {
		return out, fmt.Errorf("openai list models: %w", err)
	}
	return out, nil
}

type session struct {
	id     string
	model  string
	client *openai.Client
	opts   Options

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (s *session) ID() string { return s.id }

func (s *session) buildParams(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(s.model),
	}
	if s.opts.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(s.opts.MaxCompletionTokens)
	}
	if s.opts.Temperature != nil {
		params.Temperature = openai.Float(*s.opts.Temperature)
	}
	return params
}

// begin derives the exchange context; Close cancels it.
func (s *session) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("openai: session %s is closed", s.id)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return ctx, nil
}

// Stream implements backend.Session.
func (s *session) Stream(ctx context.Context, prompt string) (<-chan backend.Event, error) {
	ctx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan backend.Event, 32)
	go func() {
		defer close(out)
		stream := s.client.Chat.Completions.NewStreaming(ctx, s.buildParams(prompt))
		defer stream.Close()
		var text strings.Builder
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					text.WriteString(ch.Delta.Content)
					if !backend.Emit(ctx, out, backend.DeltaEvent(ch.Delta.Content)) {
						return
					}
				}
				if ch.FinishReason != "" {
					backend.Emit(ctx, out, backend.MessageEvent(text.String()))
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			backend.Emit(ctx, out, backend.ErrorEvent(fmt.Sprintf("openai streaming error: %v", err)))
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
	resp, err := s.client.Chat.Completions.New(ctx, s.buildParams(prompt))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, nil
	}
	return &backend.Message{ID: resp.ID, Content: resp.Choices[0].Message.Content}, nil
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
