// Package query drives a single backend session to a terminal core.Result.
//
// An Executor walks the per-query state machine
//
//	Opening -> Sending -> {Streaming | WaitingSingleResponse} -> Terminal
//
// enforcing a timeout over the sending and waiting phases and guaranteeing
// exactly one session release on every exit path. All failures, including
// panics, are folded into the returned Result; Execute never returns an error.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/logging"
)

// Options configure an Executor.
type Options struct {
	// Timeout applies to requests that do not carry their own.
	Timeout time.Duration

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor runs one query at a time against sessions opened from a client.
// It holds no per-query state and is safe for concurrent use.
type Executor struct {
	client backend.Client
	opts   Options
}

// NewExecutor creates an Executor. A nil client makes every query fail with
// a backend-unavailable Result.
func NewExecutor(client backend.Client, optFns ...func(o *Options)) *Executor {
	opts := Options{Timeout: core.DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Executor{client: client, opts: opts}
}

// run holds the mutable state of one query.
type run struct {
	req       core.Request
	onDelta   core.DeltaFunc
	partial   strings.Builder
	fragments int
}

// Execute runs req to completion. onDelta, when non-nil, is invoked
// synchronously with every streamed fragment in arrival order.
func (e *Executor) Execute(ctx context.Context, req core.Request, onDelta core.DeltaFunc) (res core.Result) {
	start := time.Now()
	r := &run{req: req, onDelta: onDelta}

	defer func() {
		if p := recover(); p != nil {
			res = core.Failure(req.Model, core.NewQueryError(core.KindInternal, fmt.Sprintf("panic: %v", p), nil))
			res.Partial = r.partial.String()
		}
		res.Model = req.Model
		res.Duration = time.Since(start)
		e.logResult(res, req.Streaming, r.fragments)
	}()

	if e.client == nil {
		return core.Failure(req.Model, backend.Unavailable("executor", "client not initialized"))
	}

	sess, err := e.client.Open(ctx, backend.SessionConfig{Model: req.Model, Streaming: req.Streaming})
	if err != nil {
		return core.Failure(req.Model, openError(err))
	}
	if sess == nil {
		return core.Failure(req.Model, core.NewQueryError(core.KindSessionOpen, "backend returned no session", nil))
	}
	defer e.release(req.Model, sess)

	timeout := req.EffectiveTimeout(e.opts.Timeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := backend.FormatPrompt(req.Turns)
	var content string
	if req.Streaming {
		content, err = r.stream(waitCtx, sess, prompt)
	} else {
		content, err = r.sendAndWait(waitCtx, sess, prompt)
	}
	if err != nil {
		res = core.Failure(req.Model, classify(ctx, waitCtx, err, timeout))
		res.Partial = r.partial.String()
		return res
	}
	return core.Success(req.Model, content)
}

// stream consumes session events until a terminal event or context expiry.
func (r *run) stream(ctx context.Context, sess backend.Session, prompt string) (string, error) {
	events, err := sess.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return "", core.NewQueryError(core.KindNoResponse, "stream ended without a terminal event", nil)
			}
			switch ev.Type {
			case backend.EventMessageDelta:
				r.partial.WriteString(ev.Delta)
				r.fragments++
				if r.onDelta != nil {
					r.onDelta(ev.Delta)
				}
			case backend.EventMessage, backend.EventSessionIdle:
				return r.partial.String(), nil
			case backend.EventError:
				msg := ev.Message
				if msg == "" {
					msg = "backend reported an error"
				}
				return "", core.NewQueryError(core.KindBackendError, msg, nil)
			}
		}
	}
}

// sendAndWait performs the blocking exchange. The session call runs in its
// own goroutine so the timeout holds even for backends that ignore ctx.
func (r *run) sendAndWait(ctx context.Context, sess backend.Session, prompt string) (string, error) {
	type reply struct {
		msg   *backend.Message
		err   error
		panic any
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{panic: p}
			}
		}()
		msg, err := sess.SendAndWait(ctx, prompt)
		done <- reply{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case rep := <-done:
		switch {
		case rep.panic != nil:
			panic(rep.panic)
		case rep.err != nil:
			return "", rep.err
		case rep.msg == nil:
			return "", core.NewQueryError(core.KindNoResponse, core.ErrNoResponse.Error(), nil)
		}
		return rep.msg.Content, nil
	}
}

func (e *Executor) release(model string, sess backend.Session) {
	if err := sess.Close(); err != nil {
		e.opts.Logger.Warn("Session release failed", "model", model, "session_id", sess.ID(), "error", err.Error())
	}
}

func (e *Executor) logResult(res core.Result, streaming bool, fragments int) {
	if l, ok := e.opts.Logger.(*logging.CouncilLogger); ok {
		var err error
		if res.Error != nil {
			err = res.Error
		}
		l.LogQuery(res.Model, streaming, fragments, res.Duration, err)
		return
	}
	if res.Error != nil {
		e.opts.Logger.Error("Model query failed", "model", res.Model, "kind", string(res.Error.Kind), "error", res.Error.Message, "duration", res.Duration)
		return
	}
	e.opts.Logger.Debug("Model query completed", "model", res.Model, "fragments", fragments, "duration", res.Duration)
}

// openError classifies a failure to open a session.
func openError(err error) *core.QueryError {
	if errors.Is(err, core.ErrBackendUnavailable) {
		return core.NewQueryError(core.KindBackendUnavailable, err.Error(), err)
	}
	return core.NewQueryError(core.KindSessionOpen, err.Error(), err)
}

// classify maps a failure of the sending/waiting phase onto the taxonomy.
// Expiry of the query's own deadline is a timeout; cancellation of the
// caller's context is reported as such.
func classify(parent, wait context.Context, err error, timeout time.Duration) *core.QueryError {
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return core.NewQueryError(core.KindCanceled, "query canceled", parent.Err())
	}
	if errors.Is(wait.Err(), context.DeadlineExceeded) {
		return core.TimeoutError(timeout)
	}
	return core.AsQueryError(err, core.KindBackendError)
}
