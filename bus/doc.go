// Package bus implements the in-process event bus connecting the dialogue
// pipeline with the coach and safety agents.
//
// The broker is deliberately simple: free-form string topics, immutable
// events, best-effort at-most-once delivery to currently-connected
// subscribers, and a bounded per-topic ring buffer for cursor-based replay.
// There is no durable log, no deduplication and no redelivery; consumers that
// need stronger guarantees layer them on top (the safety command queue is one
// example).
package bus
