package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg and a file standing
// in for the V4L2 device node. body runs with $FRAME set to a 40x30 JPEG and
// $CALLS to a file that receives one line of arguments per invocation.
func fakeFFmpeg(t *testing.T, body string) (dev *FFmpegDevice, calls string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs a POSIX shell")
	}
	dir := t.TempDir()

	frame := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(frame, encodeJPEG(t, 40, 30), 0o600); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	device := filepath.Join(dir, "video0")
	if err := os.WriteFile(device, nil, 0o600); err != nil {
		t.Fatalf("write device: %v", err)
	}
	calls = filepath.Join(dir, "calls")

	script := filepath.Join(dir, "ffmpeg")
	content := fmt.Sprintf("#!/bin/sh\nFRAME=%q\nCALLS=%q\necho \"$*\" >> \"$CALLS\"\n%s\n", frame, calls, body)
	if err := os.WriteFile(script, []byte(content), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}

	dev = NewFFmpegDevice(script, device)
	dev.StartTimeout = 5 * time.Second
	return dev, calls
}

func readCalls(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestFFmpegDevice_OpenServesFrames(t *testing.T) {
	dev, _ := fakeFFmpeg(t, `cat "$FRAME"; exec sleep 30`)

	stream, err := dev.Open(context.Background(), Constraints{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if w, h := stream.Size(); w != 40 || h != 30 {
		t.Errorf("expected 40x30, got %dx%d", w, h)
	}
	img, ok := stream.Frame()
	if !ok || img.Bounds().Dx() != 40 {
		t.Fatalf("expected a decoded frame, got ok=%v", ok)
	}
	if err := stream.(*ffmpegStream).Err(); err != nil {
		t.Errorf("expected live stream, got %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := stream.Frame(); ok {
		t.Error("expected no frame after Close")
	}
	if err := stream.(*ffmpegStream).Err(); err != nil {
		t.Errorf("expected no error after Close, got %v", err)
	}
}

func TestFFmpegDevice_ProcessExitEndsStream(t *testing.T) {
	dev, _ := fakeFFmpeg(t, `cat "$FRAME"; echo "video0: No such device" >&2; exit 1`)
	source := NewSource(dev, Constraints{})

	handle, err := source.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer source.Release()

	deadline := time.Now().Add(5 * time.Second)
	for handle.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("stream did not report the exited process")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := handle.Frame(); ok {
		t.Error("expected no frame from an exited process")
	}
	_, err = NewSampler(85).Sample(handle)
	if !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("expected ErrStreamEnded, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such device") {
		t.Errorf("expected ffmpeg's stderr in the error, got %q", err)
	}
}

func TestFFmpegDevice_ExitBeforeFirstFrame(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		kind   AcquisitionErrorKind
	}{
		{"permission", "/dev/video0: Permission denied", AcquisitionPermissionDenied},
		{"busy", "ioctl(VIDIOC_STREAMON): Device or resource busy", AcquisitionBusy},
		{"missing", "/dev/video0: No such file or directory", AcquisitionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, calls := fakeFFmpeg(t, fmt.Sprintf("echo %q >&2; exit 1", tt.stderr))

			_, err := dev.Open(context.Background(), Constraints{Width: 1920, Height: 1080})
			var acqErr *AcquisitionError
			if !errors.As(err, &acqErr) {
				t.Fatalf("expected *AcquisitionError, got %v", err)
			}
			if acqErr.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, acqErr.Kind)
			}
			if n := len(readCalls(t, calls)); n != 1 {
				t.Errorf("expected no retry for a classified error, got %d calls", n)
			}
		})
	}
}

func TestFFmpegDevice_ResolutionHintFallback(t *testing.T) {
	dev, calls := fakeFFmpeg(t, `case "$*" in
  *-video_size*) echo "Invalid argument" >&2; exit 1 ;;
esac
cat "$FRAME"; exec sleep 30`)

	stream, err := dev.Open(context.Background(), Constraints{Width: 1920, Height: 1080})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	lines := readCalls(t, calls)
	if len(lines) != 2 {
		t.Fatalf("expected 2 ffmpeg invocations, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "-video_size 1920x1080") {
		t.Errorf("expected the hint first, got %q", lines[0])
	}
	if strings.Contains(lines[1], "-video_size") {
		t.Errorf("expected the device default second, got %q", lines[1])
	}
}

func TestFFmpegDevice_FirstFrameTimeout(t *testing.T) {
	dev, _ := fakeFFmpeg(t, `exec sleep 30`)
	dev.StartTimeout = 100 * time.Millisecond

	_, err := dev.Open(context.Background(), Constraints{})
	if err == nil || !strings.Contains(err.Error(), "no frame") {
		t.Errorf("expected first frame timeout, got %v", err)
	}
}

func TestFFmpegDevice_ContextCancelled(t *testing.T) {
	dev, _ := fakeFFmpeg(t, `exec sleep 30`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := dev.Open(ctx, Constraints{Width: 640, Height: 480})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFFmpegDevice_MissingDeviceNode(t *testing.T) {
	dev, _ := fakeFFmpeg(t, `exit 0`)
	dev.Device = filepath.Join(t.TempDir(), "video9")

	_, err := NewSource(dev, Constraints{}).Acquire(context.Background())
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) || acqErr.Kind != AcquisitionNotFound {
		t.Errorf("expected not_found acquisition error, got %v", err)
	}
}
