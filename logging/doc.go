// Package logging provides a minimal logging interface and adapters for the council.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that executors, orchestrators and servers use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - CouncilLogger with component scoping and query/fan-out helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch := orchestrator.New(client, func(o *orchestrator.Options) { o.Logger = logger })
//
// Arguments after the message are slog style key/value pairs.
package logging
