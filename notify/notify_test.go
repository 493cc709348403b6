package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

func TestHTTPScheduler_PostsTask(t *testing.T) {
	var got core.ScheduledTask
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schedule-task" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPScheduler(srv.URL)
	task := core.ScheduledTask{UserID: "u1", Kind: "check_in", At: time.Now().Add(time.Hour).UTC()}
	if err := s.ScheduleTask(context.Background(), task); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if got.UserID != "u1" || got.Kind != "check_in" {
		t.Fatalf("payload wrong: %+v", got)
	}
}

func TestHTTPNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	err := n.SendNotification(context.Background(), core.Notification{UserID: "u1", Body: "hi"})
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
