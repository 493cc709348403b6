package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/dialogue"
	"github.com/kokoro-ai/kokoro/memory"
	"github.com/kokoro-ai/kokoro/model"
)

func newTestServer(t *testing.T) (*Server, *bus.Broker) {
	t.Helper()
	broker := bus.New()
	t.Cleanup(func() { broker.Close() })

	m := model.NewMockModel()
	m.AddResponse("listening stage", `{"summary": "a quiet morning"}`)
	m.AddResponse("emotion-reading stage", `{"primary": "neutral", "intensity": "low"}`)
	m.AddResponse("conversation planner", `{"mode": "support", "goal": "reflect_feelings"}`)
	m.AddResponse("reply stage", `{"text": "Good morning. How did you sleep?"}`)

	orc := dialogue.NewOrchestrator(m, memory.NewInMemoryService(), broker)
	return NewServer(orc, broker), broker
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestTurnEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postJSON(t, srv, "/turn", core.TurnRequest{UserID: "u1", Transcript: "good morning"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res core.TurnResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Coach.Text != "Good morning. How did you sleep?" {
		t.Fatalf("coach text = %q", res.Coach.Text)
	}
	if res.Tone == "" || res.TurnID == "" {
		t.Fatalf("incomplete result: %+v", res)
	}
}

func TestTurnEndpoint_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postJSON(t, srv, "/turn", core.TurnRequest{Transcript: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/turn", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", rr.Code)
	}
}

func TestPublishEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postJSON(t, srv, "/events", publishRequest{
		Topic:   "demo.topic",
		Payload: map[string]any{"hello": "world"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res publishResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.EventID == "" {
		t.Fatal("missing event id")
	}
	if res.Delivered != 0 {
		t.Fatalf("delivered = %d, want 0 without subscribers", res.Delivered)
	}

	rec = postJSON(t, srv, "/events", publishRequest{Payload: map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing topic", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

// readSSEEvents reads count data frames from an open SSE response.
func readSSEEvents(t *testing.T, body *bufio.Reader, count int) []core.Event {
	t.Helper()
	var events []core.Event
	for len(events) < count {
		line, err := body.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read failed after %d events: %v", len(events), err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamEndpoint_LiveDelivery(t *testing.T) {
	srv, broker := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events/stream/demo.topic", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// wait for the handler's subscription before publishing
	deadline := time.Now().Add(2 * time.Second)
	for broker.SubscriberCount("demo.topic") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	published, _, err := broker.Publish("demo.topic", map[string]any{"n": "1"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	events := readSSEEvents(t, bufio.NewReader(resp.Body), 1)
	if events[0].ID != published.ID {
		t.Fatalf("streamed %s, want %s", events[0].ID, published.ID)
	}
}

func TestStreamEndpoint_SinceReplaysRetainedEvents(t *testing.T) {
	srv, broker := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	first, _, _ := broker.Publish("demo.topic", map[string]any{"n": "1"})
	second, _, _ := broker.Publish("demo.topic", map[string]any{"n": "2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		ts.URL+"/events/stream/demo.topic?since="+first.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	events := readSSEEvents(t, bufio.NewReader(resp.Body), 1)
	if events[0].ID != second.ID {
		t.Fatalf("replayed %s, want the event after the cursor %s", events[0].ID, second.ID)
	}
}
