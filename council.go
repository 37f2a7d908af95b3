// Package llmcouncil provides a high-level handle over the fan-out
// orchestrator and the model backends. Most applications interact with this
// package by:
//  1. Creating a Council via New() around a backend.Client (router, provider or mock)
//  2. Calling Start once at startup to discover and validate models
//  3. Querying several models at once with Query
//  4. Calling Stop at shutdown
//
// Queries issued before Start or after Stop do not fail as a whole: every
// requested model receives a backend-unavailable Result.
package llmcouncil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/logging"
	"github.com/hupe1980/llmcouncil/orchestrator"
)

// DefaultCouncilModels are queried when the caller does not select models.
var DefaultCouncilModels = []string{
	"gpt-5",
	"claude-sonnet-4.5",
	"claude-sonnet-4",
	"claude-haiku-4.5",
}

// DefaultChairmanModel is validated at startup alongside the council models.
const DefaultChairmanModel = "gpt-5"

// Options configures the Council instance.
type Options struct {
	// CouncilModels are the default targets of Query when none are given.
	CouncilModels []string

	// ChairmanModel is validated at startup; it is consumed by downstream
	// synthesis stages outside this package.
	ChairmanModel string

	// Timeout bounds each individual model query.
	Timeout time.Duration

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Council is the process-wide handle owning the backend client lifecycle.
type Council struct {
	opts   Options
	client backend.Client
	orch   *orchestrator.Orchestrator

	mu      sync.RWMutex
	started bool
	models  []backend.ModelInfo
}

// New creates a Council over client. The Council is not usable until Start.
func New(client backend.Client, optFns ...func(o *Options)) *Council {
	opts := Options{
		CouncilModels: append([]string(nil), DefaultCouncilModels...),
		ChairmanModel: DefaultChairmanModel,
		Timeout:       core.DefaultTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	c := &Council{opts: opts, client: client}
	c.orch = orchestrator.New(&gate{council: c}, func(o *orchestrator.Options) {
		o.Timeout = opts.Timeout
		o.Logger = opts.Logger
	})
	return c
}

// Start initializes the handle once: it fetches the available models and
// logs a warning for every configured model the backend does not offer. A
// failed listing is logged and leaves the model list empty; Start only fails
// when no client is configured.
func (c *Council) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.client == nil {
		return fmt.Errorf("start council: %w: no client configured", core.ErrBackendUnavailable)
	}
	models, err := c.client.ListModels(ctx)
	if err != nil {
		c.opts.Logger.Error("Failed to fetch models", "error", err.Error())
	}
	c.models = models
	c.started = true

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	c.opts.Logger.Info("Available models", "models", ids)
	for model, ok := range c.validateLocked(c.configuredModels()...) {
		if !ok {
			c.opts.Logger.Warn("Configured model is not available", "model", model)
		}
	}
	return nil
}

// Stop releases the handle. Further queries fail per model until Start is
// called again.
func (c *Council) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.models = nil
	return nil
}

// Started reports whether Start has completed and Stop has not been called.
func (c *Council) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// AvailableModels returns the models discovered by Start.
func (c *Council) AvailableModels() []backend.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]backend.ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

// ValidateModels reports, per model id, whether the backend offers it. With
// no ids the configured council and chairman models are checked.
func (c *Council) ValidateModels(ids ...string) map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(ids) == 0 {
		ids = c.configuredModels()
	}
	return c.validateLocked(ids...)
}

func (c *Council) validateLocked(ids ...string) map[string]bool {
	available := make(map[string]struct{}, len(c.models))
	for _, m := range c.models {
		available[m.ID] = struct{}{}
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, ok := available[id]
		out[id] = ok
	}
	return out
}

func (c *Council) configuredModels() []string {
	ids := append([]string(nil), c.opts.CouncilModels...)
	if c.opts.ChairmanModel != "" {
		ids = append(ids, c.opts.ChairmanModel)
	}
	return ids
}

// CouncilModels returns the default query targets.
func (c *Council) CouncilModels() []string {
	return append([]string(nil), c.opts.CouncilModels...)
}

// ChairmanModel returns the configured chairman model.
func (c *Council) ChairmanModel() string { return c.opts.ChairmanModel }

// Query sends turns to models (or the configured council models when empty)
// concurrently. See orchestrator.Orchestrator.RunParallel.
func (c *Council) Query(ctx context.Context, models []string, turns []core.Turn, observer core.ObserverFunc) (core.ResultMap, error) {
	if len(models) == 0 {
		models = c.opts.CouncilModels
	}
	return c.orch.RunParallel(ctx, models, turns, observer)
}

// gate refuses sessions while the council is not started.
type gate struct{ council *Council }

func (g *gate) Open(ctx context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	if !g.council.Started() {
		return nil, backend.Unavailable("council", "client not initialized")
	}
	return g.council.client.Open(ctx, cfg)
}

func (g *gate) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	if !g.council.Started() {
		return nil, backend.Unavailable("council", "client not initialized")
	}
	return g.council.client.ListModels(ctx)
}
