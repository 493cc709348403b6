// Package memory provides MemoryService implementations: a process-local
// store for tests and demo servers, and an HTTP client for the deployed
// memory retrieval service.
package memory
