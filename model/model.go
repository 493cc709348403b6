// Package model defines the normalized LLM contract consumed by the dialogue
// stages and the coach/safety agents: a prompt goes in, JSON-shaped text comes
// back. Providers adapt this contract onto their SDKs; parsing of the returned
// text is always the caller's responsibility (see internal/jsonx).
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Message is a single conversational message.
type Message struct {
	Role string `json:"role"` // user, assistant
	Text string `json:"text"`
}

// Request captures the normalized model input produced by the stages.
type Request struct {
	// Instructions is the system prompt for the call.
	Instructions string `json:"instructions"`
	// Messages is the ordered conversation slice to complete.
	Messages []Message `json:"messages"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed model output.
type Response struct {
	Text  string      `json:"text"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required to drive a generation stage.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned responses are matched by substring against the rendered request
// (instructions plus messages); the first registered match wins.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	keys      []string
	responses map[string]string
	err       error
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel() *MockModel {
	return &MockModel{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion returned when key is a substring
// of the rendered request.
func (m *MockModel) AddResponse(key, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.responses[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.responses[key] = response
}

// FailWith makes every subsequent Complete call return err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns a copy of every request seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return Response{}, m.err
	}

	var b strings.Builder
	b.WriteString(req.Instructions)
	for _, msg := range req.Messages {
		b.WriteString("\n")
		b.WriteString(msg.Text)
	}
	rendered := b.String()

	for _, key := range m.keys {
		if strings.Contains(rendered, key) {
			return Response{Text: m.responses[key]}, nil
		}
	}
	return Response{Text: fmt.Sprintf("Mock response to: %s", lastText(req))}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func lastText(req Request) string {
	if len(req.Messages) == 0 {
		return req.Instructions
	}
	return req.Messages[len(req.Messages)-1].Text
}
