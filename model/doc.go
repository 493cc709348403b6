// Package model provides the provider-neutral LLM abstraction plus a mock
// implementation for tests. Concrete adapters live in the subpackages
// model/openai and model/anthropic.
package model
