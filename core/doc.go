// Package core provides the foundational domain types and interfaces used by
// Kokoro. It defines the core abstractions for:
//
//   - Events (immutable bus records exchanged between agents)
//   - Safety commands (agent-issued conversational directives)
//   - Conversation context (the per-turn read-time join over memory and
//     synthetic health-signal sources)
//   - Turn artifacts (listener / emotion / plan / coach outputs, tones,
//     persisted turn records)
//   - Playbooks (incrementally curated retrieval strategies and rules)
//   - Pluggable services for memory retrieval, state reads, persistence,
//     scheduling and notification dispatch
//
// The package intentionally keeps implementation concerns (broker wiring,
// HTTP transport, concrete agents) out of scope, exposing small interfaces to
// enable custom backends and isolated testing.
package core
