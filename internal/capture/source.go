// Package capture owns the camera: acquiring and releasing the video stream
// and sampling single frames from it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
)

// Constraints are hints for the device. A device may substitute any
// configuration it supports.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// Device opens live video streams.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open video stream.
type Stream interface {
	// Frame returns the most recent frame, or false if none is available yet.
	Frame() (image.Image, bool)
	// Size returns the native frame size, or zeros while it is unknown.
	Size() (width, height int)
	// Close stops every underlying track.
	Close() error
}

// endingStream is implemented by streams that can end on their own, such as
// a capture process that exits. Err returns nil while the stream is live.
type endingStream interface {
	Err() error
}

// AcquisitionErrorKind classifies why a stream could not be opened.
type AcquisitionErrorKind string

const (
	AcquisitionPermissionDenied AcquisitionErrorKind = "permission_denied"
	AcquisitionNotFound         AcquisitionErrorKind = "not_found"
	AcquisitionBusy             AcquisitionErrorKind = "busy"
	AcquisitionUnknown          AcquisitionErrorKind = "unknown"
)

// AcquisitionError is returned when the camera cannot be opened.
type AcquisitionError struct {
	Kind AcquisitionErrorKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	switch e.Kind {
	case AcquisitionPermissionDenied:
		return fmt.Sprintf("camera permission denied: %v", e.Err)
	case AcquisitionNotFound:
		return fmt.Sprintf("no camera found: %v", e.Err)
	case AcquisitionBusy:
		return fmt.Sprintf("camera is busy: %v", e.Err)
	default:
		return fmt.Sprintf("failed to open camera: %v", e.Err)
	}
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// newAcquisitionError wraps err, deriving the kind from well-known causes.
func newAcquisitionError(err error) *AcquisitionError {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr
	}

	kind := AcquisitionUnknown
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = AcquisitionPermissionDenied
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, exec.ErrNotFound):
		kind = AcquisitionNotFound
	case errors.Is(err, syscall.EBUSY):
		kind = AcquisitionBusy
	}
	return &AcquisitionError{Kind: kind, Err: err}
}

// Handle is an acquired stream. It stops serving frames once released.
type Handle struct {
	stream   Stream
	released atomic.Bool
}

// Frame returns the latest frame of the stream.
func (h *Handle) Frame() (image.Image, bool) {
	if h == nil || h.released.Load() {
		return nil, false
	}
	return h.stream.Frame()
}

// Err returns a non-nil error once the stream has ended by itself.
func (h *Handle) Err() error {
	if h == nil || h.released.Load() {
		return nil
	}
	if es, ok := h.stream.(endingStream); ok {
		return es.Err()
	}
	return nil
}

// Size returns the native frame size of the stream.
func (h *Handle) Size() (int, int) {
	if h == nil || h.released.Load() {
		return 0, 0
	}
	return h.stream.Size()
}

// Source manages the lifecycle of one camera stream.
type Source struct {
	device      Device
	constraints Constraints

	mu     sync.Mutex
	handle *Handle
}

// NewSource creates a source for the given device and hints.
func NewSource(device Device, constraints Constraints) *Source {
	return &Source{device: device, constraints: constraints}
}

// Acquire opens the stream. A device that fails, panics, or returns after the
// context was cancelled yields an *AcquisitionError and leaves nothing open.
func (s *Source) Acquire(ctx context.Context) (handle *Handle, err error) {
	s.mu.Lock()
	if s.handle != nil {
		h := s.handle
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	var stream Stream
	defer func() {
		if r := recover(); r != nil {
			if stream != nil {
				_ = stream.Close()
			}
			handle = nil
			err = &AcquisitionError{Kind: AcquisitionUnknown, Err: fmt.Errorf("device panicked: %v", r)}
		}
	}()

	stream, err = s.device.Open(ctx, s.constraints)
	if err != nil {
		return nil, newAcquisitionError(err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = stream.Close()
		return nil, &AcquisitionError{Kind: AcquisitionUnknown, Err: ctxErr}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		// Lost a race with another Acquire, keep the first stream.
		_ = stream.Close()
		return s.handle, nil
	}
	s.handle = &Handle{stream: stream}
	return s.handle, nil
}

// Release stops every track of the stream and clears the handle. Safe to call
// repeatedly and before Acquire.
func (s *Source) Release() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h == nil || h.released.Swap(true) {
		return
	}
	_ = h.stream.Close()
}
