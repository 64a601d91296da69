package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		expectBody bool
	}{
		{"object", http.StatusOK, map[string]int{"count": 2}, true},
		{"created", http.StatusCreated, []string{"a"}, true},
		{"nil data", http.StatusNoContent, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tt.status, tt.data)

			if recorder.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, recorder.Code)
			}
			if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
			}
			if got := recorder.Body.Len() > 0; got != tt.expectBody {
				t.Errorf("expected body=%v, got %q", tt.expectBody, recorder.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "class_id is required")

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["error"] != "class_id is required" {
		t.Errorf("expected error message, got '%s'", body["error"])
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", body["status"])
	}
}

func TestEventBroadcaster(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()

	b.SendEvent(KioskEvent{Type: EventState})
	if got := <-ch; got.Type != EventState {
		t.Errorf("expected state event, got %s", got.Type)
	}

	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after RemoveListener")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("expected no listeners, got %d", b.ListenerCount())
	}

	// Sending with no listeners must not block.
	b.SendEvent(KioskEvent{Type: EventOutcome})
}
