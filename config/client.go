package config

import (
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/backend/anthropic"
	"github.com/hupe1980/llmcouncil/backend/openai"
)

// BuildClient assembles the backend described by the configuration: a
// prefix router over every provider that has an API key, or the offline
// mock backend when council.mock is set. Providers without credentials are
// left out, so their models fail as unavailable instead of at startup.
func (c *Config) BuildClient() backend.Client {
	if c.Council.Mock {
		return backend.NewMockClient()
	}

	var routes []backend.Route
	if key := c.OpenAI.Key(); key != "" {
		p := c.OpenAI
		routes = append(routes, backend.Route{
			Name:     "openai",
			Prefixes: p.Prefixes,
			Client: openai.NewClient(func(o *openai.Options) {
				o.APIKey = key
				o.BaseURL = p.BaseURL
				o.Temperature = p.Temperature
				if p.MaxTokens > 0 {
					o.MaxCompletionTokens = p.MaxTokens
				}
				if p.MaxRetries > 0 {
					o.RequestOptions = append(o.RequestOptions, openaiopt.WithMaxRetries(p.MaxRetries))
				}
			}),
		})
	}
	if key := c.Anthropic.Key(); key != "" {
		p := c.Anthropic
		routes = append(routes, backend.Route{
			Name:     "anthropic",
			Prefixes: p.Prefixes,
			Client: anthropic.NewClient(func(o *anthropic.Options) {
				o.APIKey = key
				o.BaseURL = p.BaseURL
				o.Temperature = p.Temperature
				if p.MaxTokens > 0 {
					o.MaxTokens = p.MaxTokens
				}
				if p.MaxRetries > 0 {
					o.RequestOptions = append(o.RequestOptions, anthropicopt.WithMaxRetries(p.MaxRetries))
				}
			}),
		})
	}
	return backend.NewRouter(routes)
}
