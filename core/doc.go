// Package core provides the foundational domain types shared by the council
// packages. It defines:
//
//   - Turns (role-tagged conversation history sent verbatim to every backend)
//   - Requests (one query to one model with timeout and streaming flag)
//   - Results and ResultMaps (terminal per-model outcomes of a fan-out)
//   - QueryError (the failure taxonomy carried inside a Result)
//
// The package keeps transport concerns (SDK clients, sessions, persistence)
// out of scope so that executors, orchestrators and stores can share one
// vocabulary without importing each other.
package core
