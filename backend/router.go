package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Route binds model id prefixes to a provider client.
type Route struct {
	Name     string
	Prefixes []string
	Client   Client
}

// Matches reports whether model belongs to this route.
func (r Route) Matches(model string) bool {
	for _, p := range r.Prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// RouterOptions configure a Router.
type RouterOptions struct {
	// Fallback handles models no route matches. Nil rejects them.
	Fallback Client
}

// Router is a Client dispatching to provider clients by model id prefix.
// Routes are matched in registration order.
type Router struct {
	routes []Route
	opts   RouterOptions
}

// NewRouter creates a Router over routes. Routes with a nil client are skipped
// so callers can register optional providers unconditionally.
func NewRouter(routes []Route, optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	r := &Router{opts: opts}
	for _, rt := range routes {
		if rt.Client != nil {
			r.routes = append(r.routes, rt)
		}
	}
	return r
}

// Resolve returns the client responsible for model.
func (r *Router) Resolve(model string) (Client, error) {
	for _, rt := range r.routes {
		if rt.Matches(model) {
			return rt.Client, nil
		}
	}
	if r.opts.Fallback != nil {
		return r.opts.Fallback, nil
	}
	if len(r.routes) == 0 {
		return nil, Unavailable("router", "no providers configured")
	}
	return nil, fmt.Errorf("no provider serves model %q", model)
}

// Open implements Client.
func (r *Router) Open(ctx context.Context, cfg SessionConfig) (Session, error) {
	c, err := r.Resolve(cfg.Model)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, cfg)
}

// ListModels implements Client by concatenating every provider listing. A
// failing provider does not hide the others; its error is joined into the
// returned error.
func (r *Router) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var (
		out  []ModelInfo
		errs []error
	)
	clients := make([]Client, 0, len(r.routes)+1)
	for _, rt := range r.routes {
		clients = append(clients, rt.Client)
	}
	if r.opts.Fallback != nil {
		clients = append(clients, r.opts.Fallback)
	}
	for i, c := range clients {
		models, err := c.ListModels(ctx)
		if err != nil {
			name := "fallback"
			if i < len(r.routes) {
				name = r.routes[i].Name
			}
			errs = append(errs, fmt.Errorf("list models (%s): %w", name, err))
			continue
		}
		out = append(out, models...)
	}
	return out, errors.Join(errs...)
}
