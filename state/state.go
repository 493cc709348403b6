// Package state provides clients for the synthetic health-signal engines:
// HTTP clients for deployments and static implementations for tests and
// demos. Both engines expose the same surface (GET /state/{userId}); they
// differ only in the shape of the returned summary.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

// Options configure the HTTP state clients.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// PhysicalClient reads physical state over HTTP.
type PhysicalClient struct {
	baseURL string
	client  *http.Client
}

// NewPhysicalClient constructs a client for the physical-signal engine.
func NewPhysicalClient(baseURL string, optFns ...func(o *Options)) *PhysicalClient {
	return &PhysicalClient{baseURL: baseURL, client: buildClient(optFns)}
}

// PhysicalState implements core.PhysicalStateService.
func (c *PhysicalClient) PhysicalState(ctx context.Context, userID string) (*core.PhysicalState, error) {
	var out core.PhysicalState
	if err := getJSON(ctx, c.client, fmt.Sprintf("%s/state/%s", c.baseURL, userID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MindBehaviorClient reads mind/behavior state over HTTP.
type MindBehaviorClient struct {
	baseURL string
	client  *http.Client
}

// NewMindBehaviorClient constructs a client for the mind/behavior engine.
func NewMindBehaviorClient(baseURL string, optFns ...func(o *Options)) *MindBehaviorClient {
	return &MindBehaviorClient{baseURL: baseURL, client: buildClient(optFns)}
}

// MindBehaviorState implements core.MindBehaviorService.
func (c *MindBehaviorClient) MindBehaviorState(ctx context.Context, userID string) (*core.MindBehaviorState, error) {
	var out core.MindBehaviorState
	if err := getJSON(ctx, c.client, fmt.Sprintf("%s/state/%s", c.baseURL, userID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func buildClient(optFns []func(o *Options)) *http.Client {
	opts := Options{Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient != nil {
		return opts.HTTPClient
	}
	return &http.Client{Timeout: opts.Timeout}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("state: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("state: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("state: unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("state: decode response: %w", err)
	}
	return nil
}

// StaticPhysical returns a fixed physical state. Useful for tests and demos.
type StaticPhysical struct {
	Value *core.PhysicalState
	Err   error
}

// PhysicalState implements core.PhysicalStateService.
func (s *StaticPhysical) PhysicalState(context.Context, string) (*core.PhysicalState, error) {
	return s.Value, s.Err
}

// StaticMindBehavior returns a fixed mind/behavior state.
type StaticMindBehavior struct {
	Value *core.MindBehaviorState
	Err   error
}

// MindBehaviorState implements core.MindBehaviorService.
func (s *StaticMindBehavior) MindBehaviorState(context.Context, string) (*core.MindBehaviorState, error) {
	return s.Value, s.Err
}

var (
	_ core.PhysicalStateService = (*PhysicalClient)(nil)
	_ core.MindBehaviorService  = (*MindBehaviorClient)(nil)
	_ core.PhysicalStateService = (*StaticPhysical)(nil)
	_ core.MindBehaviorService  = (*StaticMindBehavior)(nil)
)
