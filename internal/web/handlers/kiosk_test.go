package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
)

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) KioskSnapshot {
	t.Helper()
	var snap KioskSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to unmarshal snapshot: %v (%s)", err, rec.Body.String())
	}
	return snap
}

func TestKioskHandler_GetIdle(t *testing.T) {
	h := newTestKioskHandler(t, testDevice{}, &testSubmitter{})

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/kiosk", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decodeSnapshot(t, rec)
	if snap.Running || snap.State.Kind != scan.StateIdle || snap.State.Label != "Idle" {
		t.Errorf("unexpected idle snapshot %+v", snap)
	}
	if snap.Recent == nil {
		t.Error("expected empty recent list, not null")
	}
}

func TestKioskHandler_StartStop(t *testing.T) {
	h := newTestKioskHandler(t, testDevice{}, &testSubmitter{})

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/start", strings.NewReader(`{"class_id": 7}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if !snap.Running || snap.ClassID != 7 || snap.RunID == "" {
		t.Errorf("expected running snapshot for class 7, got %+v", snap)
	}

	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/stop", nil))

	snap = decodeSnapshot(t, rec)
	if snap.Running {
		t.Error("expected stopped snapshot")
	}
	if snap.State.Label != "Stopped" {
		t.Errorf("expected Stopped label, got %q", snap.State.Label)
	}
	if snap.ClassID != 7 {
		t.Errorf("expected class id to be remembered, got %d", snap.ClassID)
	}
}

func TestKioskHandler_StartValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"no class configured", `{}`, http.StatusBadRequest},
		{"negative class", `{"class_id": -1}`, http.StatusBadRequest},
		{"invalid json", `{"class_id":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestKioskHandler(t, testDevice{}, &testSubmitter{})

			rec := httptest.NewRecorder()
			h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/start", strings.NewReader(tt.body)))

			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestKioskHandler_StartCameraError(t *testing.T) {
	device := testDevice{err: &capture.AcquisitionError{Kind: capture.AcquisitionBusy, Err: errors.New("busy")}}
	h := newTestKioskHandler(t, device, &testSubmitter{})

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/start", strings.NewReader(`{"class_id": 3}`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	snap := decodeSnapshot(t, rec)
	if snap.Running {
		t.Error("expected not running")
	}
	if snap.State.Kind != scan.StateError || snap.State.Label != "Camera error" {
		t.Errorf("expected camera error state, got %+v", snap.State)
	}
	if snap.Message != "Camera is in use by another application" {
		t.Errorf("unexpected message %q", snap.Message)
	}
}

func TestKioskHandler_OutcomeReachesSnapshot(t *testing.T) {
	sub := &testSubmitter{result: &attendu.MarkResult{
		MatchedStudent: &attendu.MatchedStudent{ID: 1, Name: "Ada"},
		Distance:       0.2,
	}}
	h := newTestKioskHandler(t, testDevice{}, sub)
	events := h.AddListener()
	defer h.RemoveListener(events)

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/start", strings.NewReader(`{"class_id": 5}`)))
	run := h.scheduler.Current()
	if run == nil {
		t.Fatal("expected a running capture run")
	}
	if res := run.Tick(); res != scan.TickSubmitted {
		t.Fatalf("expected submitted tick, got %s", res)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventOutcome {
				continue
			}
			payload := ev.Data.(OutcomePayload)
			if payload.Outcome.Kind != scan.KindMatched || !payload.Decision.Notify {
				t.Errorf("unexpected outcome payload %+v", payload)
			}
			if len(payload.Recent) != 1 || payload.Recent[0].SubjectName != "Ada" {
				t.Errorf("expected Ada in recent, got %+v", payload.Recent)
			}
			if snap := h.Snapshot(); snap.State.Kind != scan.StateMatched {
				t.Errorf("expected matched state, got %s", snap.State.Kind)
			}
			return
		case <-timeout:
			t.Fatal("timed out waiting for outcome event")
		}
	}
}

func newTestRouter(h *KioskHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/kiosk/events", h.Events)
	r.Get("/api/kiosk/ws", h.WS)
	r.Post("/api/kiosk/stop", h.Stop)
	return r
}

func TestKioskHandler_EventsSSE(t *testing.T) {
	h := newTestKioskHandler(t, testDevice{}, &testSubmitter{})
	server := httptest.NewServer(newTestRouter(h))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/kiosk/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "event: snapshot\n" {
		t.Errorf("expected snapshot event first, got %q", line)
	}
}

func TestKioskHandler_WebSocket(t *testing.T) {
	h := newTestKioskHandler(t, testDevice{}, &testSubmitter{})
	server := httptest.NewServer(newTestRouter(h))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/kiosk/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type string        `json:"type"`
		Data KioskSnapshot `json:"data"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != EventSnapshot || first.Data.State.Kind != scan.StateIdle {
		t.Errorf("unexpected first message %+v", first)
	}

	// A state change must reach the socket. Fail() is what a camera error does.
	h.scheduler.Machine().Fail()

	var next KioskEvent
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read state: %v", err)
	}
	if next.Type != EventState {
		t.Errorf("expected state event, got %s", next.Type)
	}
}

// slowTestDevice takes a while to open, like a camera warming up.
type slowTestDevice struct{ delay time.Duration }

func (d slowTestDevice) Open(ctx context.Context, _ capture.Constraints) (capture.Stream, error) {
	select {
	case <-time.After(d.delay):
		return testStream{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestKioskHandler_ConcurrentStartsKeepOneRun(t *testing.T) {
	h := newTestKioskHandler(t, slowTestDevice{delay: 50 * time.Millisecond}, &testSubmitter{})

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/start", strings.NewReader(`{"class_id": 7}`)))
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("start %d: expected 200, got %d", i, code)
		}
	}
	run := h.scheduler.Current()
	if run == nil {
		t.Fatal("expected a current run")
	}

	rec := httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/kiosk/stop", nil))
	run.Wait()

	if snap := h.Snapshot(); snap.Running || snap.State.Kind != scan.StateIdle {
		t.Errorf("expected a stopped idle snapshot, got %+v", snap)
	}
}
