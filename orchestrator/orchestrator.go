// Package orchestrator fans one conversation out to several models and joins
// their outcomes.
//
// RunParallel launches one query.Executor run per model in its own
// goroutine, waits for all of them and returns a core.ResultMap with exactly
// one entry per requested model. Failures stay local to their entry.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/logging"
	"github.com/hupe1980/llmcouncil/query"
)

// Options configure an Orchestrator.
type Options struct {
	// Timeout bounds each individual query (not the fan-out as a whole).
	Timeout time.Duration

	// ForceStreaming requests streaming sessions even without an observer.
	ForceStreaming bool

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Orchestrator coordinates concurrent queries against many models.
type Orchestrator struct {
	executor *query.Executor
	opts     Options
}

// New creates an Orchestrator over client.
func New(client backend.Client, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Timeout: core.DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	exec := query.NewExecutor(client, func(o *query.Options) {
		o.Timeout = opts.Timeout
		o.Logger = opts.Logger
	})
	return &Orchestrator{executor: exec, opts: opts}
}

// RunParallel sends turns to every model concurrently and blocks until all
// queries reached a terminal state. Duplicate model ids collapse into one
// query. observer, when non-nil, receives every streamed fragment tagged with
// its model; it is called from several goroutines at once.
//
// The only error returned is core.ErrInvalidInput, raised before any session
// is opened.
func (o *Orchestrator) RunParallel(ctx context.Context, models []string, turns []core.Turn, observer core.ObserverFunc) (core.ResultMap, error) {
	models, err := core.NormalizeModels(models)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateTurns(turns); err != nil {
		return nil, err
	}

	start := time.Now()
	history := append([]core.Turn(nil), turns...)
	streaming := observer != nil || o.opts.ForceStreaming
	results := make([]core.Result, len(models))

	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			req := core.Request{Model: model, Turns: history, Timeout: o.opts.Timeout, Streaming: streaming}
			results[i] = o.executor.Execute(ctx, req, observer.Bind(model))
		}(i, model)
	}
	wg.Wait()

	out := make(core.ResultMap, len(models))
	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
		out[res.Model] = res
	}
	o.logFanOut(len(models), failed, time.Since(start))
	return out, nil
}

// Query runs a single model through the same executor used by RunParallel.
func (o *Orchestrator) Query(ctx context.Context, req core.Request, onDelta core.DeltaFunc) core.Result {
	if req.Timeout == 0 {
		req.Timeout = o.opts.Timeout
	}
	return o.executor.Execute(ctx, req, onDelta)
}

func (o *Orchestrator) logFanOut(models, failed int, dur time.Duration) {
	if l, ok := o.opts.Logger.(*logging.CouncilLogger); ok {
		l.LogFanOut(models, failed, dur)
		return
	}
	o.opts.Logger.Info("Fan-out completed", "model_count", models, "failed_count", failed, "duration", dur)
}
