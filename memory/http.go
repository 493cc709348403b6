package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

// HTTPOptions configure the HTTP memory client.
type HTTPOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HTTPService talks to the deployed memory retrieval service.
type HTTPService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPService constructs a client for the memory service at baseURL.
func NewHTTPService(baseURL string, optFns ...func(o *HTTPOptions)) *HTTPService {
	opts := HTTPOptions{Timeout: 15 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPService{baseURL: baseURL, client: client}
}

// RetrieveForDialogue implements core.MemoryService.
func (s *HTTPService) RetrieveForDialogue(ctx context.Context, userID, query string) (*core.MemorySnapshot, error) {
	url := fmt.Sprintf("%s/memory/%s/retrieve-for-dialogue", s.baseURL, userID)
	var snap core.MemorySnapshot
	if err := s.postJSON(ctx, url, map[string]string{"query": query}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// StoreFacts implements core.MemoryService.
func (s *HTTPService) StoreFacts(ctx context.Context, userID string, facts []string) error {
	if len(facts) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/memory/%s/facts", s.baseURL, userID)
	return s.postJSON(ctx, url, map[string][]string{"facts": facts}, nil)
}

func (s *HTTPService) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("memory: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("memory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("memory: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("memory: unexpected status %d from %s", resp.StatusCode, url)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("memory: decode response: %w", err)
		}
	}
	return nil
}

var _ core.MemoryService = (*HTTPService)(nil)
