package web

import (
	"context"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
)

type stillStream struct{}

func (stillStream) Frame() (image.Image, bool) { return image.NewRGBA(image.Rect(0, 0, 4, 4)), true }
func (stillStream) Size() (int, int)           { return 4, 4 }
func (stillStream) Close() error               { return nil }

type stillDevice struct{}

func (stillDevice) Open(context.Context, capture.Constraints) (capture.Stream, error) {
	return stillStream{}, nil
}

type noMatch struct{}

func (noMatch) MarkAttendanceFromFrame(context.Context, int64, []byte) (*attendu.MarkResult, error) {
	return &attendu.MarkResult{}, nil
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	cfg := &config.Config{
		Kiosk: config.KioskConfig{ClassID: 9, Interval: time.Hour},
		Web:   config.WebConfig{Token: token},
		Scan:  config.LoadScan(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := scan.NewScheduler(
		capture.NewSource(stillDevice{}, capture.Constraints{}),
		capture.NewSampler(85),
		noMatch{},
		scan.NewStateMachine(cfg.Scan),
		scan.Options{Interval: cfg.Kiosk.Interval, Logger: logger},
	)
	s := NewServer(cfg, scheduler, 0, "127.0.0.1", logger)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func serve(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestRoutes_HealthWithoutToken(t *testing.T) {
	s := newTestServer(t, "secret")

	if rec := serve(s, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRoutes_KioskRequiresToken(t *testing.T) {
	s := newTestServer(t, "secret")

	if rec := serve(s, http.MethodGet, "/api/kiosk", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/api/kiosk", "secret"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rec.Code)
	}
}

func TestRoutes_StartUsesConfiguredClass(t *testing.T) {
	s := newTestServer(t, "")

	rec := serve(s, http.MethodPost, "/api/kiosk/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"class_id":9`) {
		t.Errorf("expected configured class 9 in %s", rec.Body.String())
	}

	rec = serve(s, http.MethodPost, "/api/kiosk/stop", "")
	if !strings.Contains(rec.Body.String(), `"running":false`) {
		t.Errorf("expected stopped snapshot, got %s", rec.Body.String())
	}
}

func TestRoutes_Dashboard(t *testing.T) {
	s := newTestServer(t, "")

	rec := serve(s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Live attendance") {
		t.Error("expected dashboard page")
	}
}

func TestAutostart_StartsConfiguredClass(t *testing.T) {
	s := newTestServer(t, "")

	if err := s.Autostart(4); err != nil {
		t.Fatalf("Autostart failed: %v", err)
	}

	rec := serve(s, http.MethodGet, "/api/kiosk", "")
	body := rec.Body.String()
	if !strings.Contains(body, `"running":true`) {
		t.Errorf("expected a running snapshot, got %s", body)
	}
	if !strings.Contains(body, `"class_id":4`) {
		t.Errorf("expected class 4, got %s", body)
	}
}
