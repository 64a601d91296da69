package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegDevice captures a V4L2 camera through an ffmpeg subprocess that
// writes a continuous MJPEG stream to its stdout. Only the latest frame is
// kept; it is decoded when sampled.
type FFmpegDevice struct {
	Path         string        // ffmpeg binary
	Device       string        // V4L2 device node, e.g. /dev/video0
	FrameRate    int           // output frames per second
	StartTimeout time.Duration // how long to wait for the first frame
	logger       *slog.Logger
}

// NewFFmpegDevice creates a device for the given ffmpeg binary and device node.
func NewFFmpegDevice(ffmpegPath, device string) *FFmpegDevice {
	return &FFmpegDevice{
		Path:         ffmpegPath,
		Device:       device,
		FrameRate:    5,
		StartTimeout: 10 * time.Second,
		logger:       slog.Default().With("device", device),
	}
}

// Open starts ffmpeg and waits for the first frame. The resolution hint is
// tried first; if the camera rejects it the device default is used.
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if _, err := os.Stat(d.Device); err != nil {
		return nil, fmt.Errorf("could not access %s: %w", d.Device, err)
	}
	if _, err := exec.LookPath(d.Path); err != nil {
		return nil, fmt.Errorf("could not find ffmpeg: %w", err)
	}
	if c.FacingMode != "" {
		d.logger.Debug("facing mode is not supported by V4L2, ignoring", "facing_mode", c.FacingMode)
	}

	stream, err := d.start(ctx, c.Width, c.Height)
	if err == nil {
		return stream, nil
	}

	var acqErr *AcquisitionError
	if ctx.Err() != nil || (c.Width == 0 && c.Height == 0) ||
		(errors.As(err, &acqErr) && acqErr.Kind != AcquisitionUnknown) {
		return nil, err
	}

	d.logger.Info("camera rejected resolution hint, using device default",
		"width", c.Width, "height", c.Height, "error", err)
	return d.start(ctx, 0, 0)
}

func (d *FFmpegDevice) args(width, height int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if width > 0 && height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", width, height))
	}
	args = append(args, "-i", d.Device)
	if d.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(d.FrameRate))
	}
	return append(args, "-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "-")
}

func (d *FFmpegDevice) start(ctx context.Context, width, height int) (*ffmpegStream, error) {
	// The process outlives the acquire context; Close cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, d.Path, d.args(width, height)...) //nolint:gosec // binary and device come from operator config

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("could not attach to ffmpeg output: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("could not start ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		cancel: cancel,
		cmd:    cmd,
		stderr: stderr,
		first:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop(stdout)

	timeout := time.NewTimer(d.StartTimeout)
	defer timeout.Stop()

	select {
	case <-s.first:
		w, h := s.Size()
		d.logger.Info("camera stream started", "width", w, "height", h)
		return s, nil
	case <-s.done:
		select {
		case <-s.first:
			// Exited right after the first frame; Err reports it on the next sample.
			return s, nil
		default:
		}
		_ = s.Close()
		s.mu.Lock()
		readErr := s.err
		s.mu.Unlock()
		return nil, classifyFFmpegError(stderr.String(), readErr)
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	case <-timeout.C:
		_ = s.Close()
		return nil, fmt.Errorf("no frame from %s within %v", d.Device, d.StartTimeout)
	}
}

// classifyFFmpegError maps ffmpeg's stderr to an acquisition error.
func classifyFFmpegError(stderr string, readErr error) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = "ffmpeg exited before the first frame"
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			msg += ": " + readErr.Error()
		}
	}

	lower := strings.ToLower(msg)
	kind := AcquisitionUnknown
	switch {
	case strings.Contains(lower, "permission denied"):
		kind = AcquisitionPermissionDenied
	case strings.Contains(lower, "device or resource busy"):
		kind = AcquisitionBusy
	case strings.Contains(lower, "no such file or directory"), strings.Contains(lower, "no such device"):
		kind = AcquisitionNotFound
	}
	return &AcquisitionError{Kind: kind, Err: errors.New(msg)}
}

type ffmpegStream struct {
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stderr *tailBuffer

	mu      sync.Mutex
	latest  []byte
	seq     uint64
	decoded image.Image
	decSeq  uint64
	width   int
	height  int
	err     error

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

func (s *ffmpegStream) readLoop(stdout io.Reader) {
	defer close(s.done)

	r := bufio.NewReaderSize(stdout, 256<<10)
	for {
		frame, err := readJPEG(r)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			break
		}

		s.mu.Lock()
		if s.width == 0 {
			if cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err == nil {
				s.width, s.height = cfg.Width, cfg.Height
			}
		}
		s.latest = frame
		s.seq++
		s.mu.Unlock()

		s.firstOnce.Do(func() { close(s.first) })
	}
	_ = s.cmd.Wait()
}

// Frame returns the latest frame. A stream whose ffmpeg process exited has
// no current frame.
func (s *ffmpegStream) Frame() (image.Image, bool) {
	if s.exited() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, false
	}
	if s.decoded != nil && s.decSeq == s.seq {
		return s.decoded, true
	}

	img, err := jpeg.Decode(bytes.NewReader(s.latest))
	if err != nil {
		return nil, false
	}
	s.decoded = img
	s.decSeq = s.seq
	return img, true
}

// Err reports why ffmpeg stopped producing frames, or nil while it runs or
// after Close.
func (s *ffmpegStream) Err() error {
	if !s.exited() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
		return fmt.Errorf("ffmpeg exited: %s", msg)
	}
	if s.err != nil && !errors.Is(s.err, io.EOF) {
		return fmt.Errorf("ffmpeg exited: %w", s.err)
	}
	return errors.New("ffmpeg exited")
}

func (s *ffmpegStream) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *ffmpegStream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Close kills ffmpeg and waits for the reader to finish.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		<-s.done
		s.mu.Lock()
		s.latest, s.decoded = nil, nil
		s.mu.Unlock()
	})
	return nil
}

// readJPEG reads the next complete JPEG image (SOI to EOI) from r.
// Entropy-coded data stuffs 0xFF bytes, so 0xFFD9 only appears as the EOI marker.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == 0xD8 {
			break
		}
		if next == 0xFF {
			_ = r.UnreadByte()
		}
	}

	buf := []byte{0xFF, 0xD8}
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		prev = b
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
