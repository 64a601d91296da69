package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"golang.org/x/image/draw"
)

// ErrNoFrame means the stream has not produced a frame yet. The caller skips
// the current tick.
var ErrNoFrame = errors.New("no frame available")

// ErrStreamEnded means the camera stream stopped delivering frames for good,
// for example because the camera was unplugged.
var ErrStreamEnded = errors.New("camera stream ended")

// Blob is an encoded still image.
type Blob struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// Sampler extracts still JPEG images from a stream.
type Sampler struct {
	Quality int
}

// NewSampler creates a sampler encoding at the given JPEG quality (1-100).
func NewSampler(quality int) *Sampler {
	if quality <= 0 || quality > 100 {
		quality = constants.DefaultJPEGQuality
	}
	return &Sampler{Quality: quality}
}

// Sample draws the current frame into a raster sized to the stream's native
// dimensions (640x480 while unknown) and encodes it as JPEG. A stream that
// ended yields ErrStreamEnded.
func (s *Sampler) Sample(h *Handle) (Blob, error) {
	if err := h.Err(); err != nil {
		return Blob{}, fmt.Errorf("%w: %w", ErrStreamEnded, err)
	}
	frame, ok := h.Frame()
	if !ok || frame == nil || frame.Bounds().Empty() {
		return Blob{}, ErrNoFrame
	}

	width, height := h.Size()
	if width <= 0 || height <= 0 {
		width, height = constants.FallbackFrameWidth, constants.FallbackFrameHeight
	}

	return s.render(frame, width, height)
}

// SampleFile decodes a still image file (JPEG, PNG or BMP) and re-encodes it
// the same way a live frame is encoded.
func (s *Sampler) SampleFile(path string) (Blob, error) {
	img, err := decodeFile(path)
	if err != nil {
		return Blob{}, err
	}
	b := img.Bounds()
	if b.Empty() {
		return Blob{}, ErrNoFrame
	}
	return s.render(img, b.Dx(), b.Dy())
}

// render draws frame into an offscreen raster of the given size and encodes it.
func (s *Sampler) render(frame image.Image, width, height int) (Blob, error) {
	raster := image.NewRGBA(image.Rect(0, 0, width, height))
	src := frame.Bounds()
	if src.Dx() == width && src.Dy() == height {
		draw.Draw(raster, raster.Bounds(), frame, src.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(raster, raster.Bounds(), frame, src, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raster, &jpeg.Options{Quality: s.Quality}); err != nil {
		return Blob{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return Blob{
		Data:        buf.Bytes(),
		Width:       width,
		Height:      height,
		ContentType: "image/jpeg",
	}, nil
}
