package handlers

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
)

type testStream struct{}

func (testStream) Frame() (image.Image, bool) { return image.NewRGBA(image.Rect(0, 0, 16, 16)), true }
func (testStream) Size() (int, int)           { return 16, 16 }
func (testStream) Close() error               { return nil }

type testDevice struct{ err error }

func (d testDevice) Open(context.Context, capture.Constraints) (capture.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return testStream{}, nil
}

// testSubmitter answers every submission with the same result.
type testSubmitter struct {
	mu     sync.Mutex
	result *attendu.MarkResult
	err    error
}

func (s *testSubmitter) MarkAttendanceFromFrame(context.Context, int64, []byte) (*attendu.MarkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Kiosk: config.KioskConfig{Interval: time.Hour},
		Scan:  config.LoadScan(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestKioskHandler creates a handler over a scheduler that only ticks by hand.
func newTestKioskHandler(t *testing.T, device capture.Device, sub scan.Submitter) *KioskHandler {
	t.Helper()
	cfg := testConfig()
	scheduler := scan.NewScheduler(
		capture.NewSource(device, capture.Constraints{}),
		capture.NewSampler(85),
		sub,
		scan.NewStateMachine(cfg.Scan),
		scan.Options{Interval: cfg.Kiosk.Interval, Logger: discardLogger()},
	)
	t.Cleanup(scheduler.Stop)
	return NewKioskHandler(context.Background(), cfg, scheduler, discardLogger())
}
