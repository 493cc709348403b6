// Package httpapi exposes the platform over HTTP: the synchronous turn
// endpoint, event publication, and a server-sent-events stream per topic with
// optional ring-buffer replay.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/dialogue"
	"github.com/kokoro-ai/kokoro/logging"
)

// Options configure the HTTP server.
type Options struct {
	Logger logging.Logger
}

// Server routes the public HTTP surface onto the orchestrator and the broker.
type Server struct {
	orchestrator *dialogue.Orchestrator
	broker       *bus.Broker
	logger       logging.Logger
	mux          *http.ServeMux
}

// NewServer wires the routes. The returned server is an http.Handler.
func NewServer(orc *dialogue.Orchestrator, broker *bus.Broker, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{
		orchestrator: orc,
		broker:       broker,
		logger:       opts.Logger,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /turn", s.handleTurn)
	s.mux.HandleFunc("POST /events", s.handlePublish)
	s.mux.HandleFunc("GET /events/stream/{topic}", s.handleStream)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req core.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.orchestrator.RunTurn(r.Context(), req)
	if err != nil {
		if errors.Is(err, dialogue.ErrUserIDRequired) || errors.Is(err, dialogue.ErrTranscriptRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("turn failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "turn failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type publishRequest struct {
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

type publishResponse struct {
	EventID   string `json:"eventId"`
	Delivered int    `json:"delivered"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, delivered, err := s.broker.Publish(req.Topic, req.Payload)
	if err != nil {
		if errors.Is(err, bus.ErrTopicRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, publishResponse{EventID: ev.ID, Delivered: delivered})
}

// handleStream serves a topic as server-sent events. With ?since=<eventID>
// the retained ring buffer is replayed first; the hand-off from replay to
// live delivery is best effort, matching the bus's at-most-once contract.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := s.broker.Subscribe(topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if cursor := r.URL.Query().Get("since"); cursor != "" {
		for _, ev := range s.broker.EventsSince(topic, cursor) {
			if !writeSSE(w, flusher, ev) {
				return
			}
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !writeSSE(w, flusher, ev) {
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev core.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	if _, err := w.Write([]byte("id: " + ev.ID + "\nevent: " + ev.Topic + "\ndata: " + string(data) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
