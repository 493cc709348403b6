// Package notify provides HTTP clients for the scheduling and notification
// collaborators. Both are fire-and-forget services; callers treat failures as
// advisory and log them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

// Options configure the HTTP dispatch clients.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HTTPScheduler posts deferred tasks to the scheduling service.
type HTTPScheduler struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScheduler constructs a scheduler client for the service at baseURL.
func NewHTTPScheduler(baseURL string, optFns ...func(o *Options)) *HTTPScheduler {
	return &HTTPScheduler{baseURL: baseURL, client: buildClient(optFns)}
}

// ScheduleTask implements core.Scheduler.
func (s *HTTPScheduler) ScheduleTask(ctx context.Context, task core.ScheduledTask) error {
	return postJSON(ctx, s.client, s.baseURL+"/schedule-task", task)
}

// HTTPNotifier posts push notifications to the notification service.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotifier constructs a notifier client for the service at baseURL.
func NewHTTPNotifier(baseURL string, optFns ...func(o *Options)) *HTTPNotifier {
	return &HTTPNotifier{baseURL: baseURL, client: buildClient(optFns)}
}

// SendNotification implements core.Notifier.
func (n *HTTPNotifier) SendNotification(ctx context.Context, note core.Notification) error {
	return postJSON(ctx, n.client, n.baseURL+"/send-notification", note)
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

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}

var (
	_ core.Scheduler = (*HTTPScheduler)(nil)
	_ core.Notifier  = (*HTTPNotifier)(nil)
)
