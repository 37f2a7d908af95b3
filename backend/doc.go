// Package backend defines the provider-agnostic session boundary between the
// query executor and language model services.
//
// Core goals:
//   - One ephemeral Session per query, opened through a Client and released with Close
//   - Unify streaming (tagged event channel) and single request/response exchanges
//   - Keep the wire contract to a single formatted prompt string (FormatPrompt)
//   - Facilitate lightweight mocking for tests (MockClient)
//
// Providers (e.g. OpenAI, Anthropic) implement Client in sub-packages; Router
// combines several providers behind one Client keyed by model id prefix.
package backend
