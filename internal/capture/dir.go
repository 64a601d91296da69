package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
)

// imageExtensions lists the files a DirDevice replays.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// DirDevice replays still images from a directory as a looping stream.
// Every Frame call advances to the next image.
type DirDevice struct {
	Dir string
}

// NewDirDevice creates a device replaying the images in dir.
func NewDirDevice(dir string) *DirDevice {
	return &DirDevice{Dir: dir}
}

// Open lists the images of the directory. Constraints are ignored: the
// images keep their own size.
func (d *DirDevice) Open(_ context.Context, _ Constraints) (Stream, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("could not read replay directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(d.Dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &AcquisitionError{
			Kind: AcquisitionNotFound,
			Err:  fmt.Errorf("no images in %s", d.Dir),
		}
	}
	slices.Sort(files)

	return &dirStream{files: files}, nil
}

type dirStream struct {
	mu     sync.Mutex
	files  []string
	next   int
	width  int
	height int
	closed bool
}

func (s *dirStream) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}

	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)

	img, err := decodeFile(path)
	if err != nil {
		slog.Warn("skipping unreadable replay image", "path", path, "error", err)
		return nil, false
	}
	b := img.Bounds()
	s.width, s.height = b.Dx(), b.Dy()
	return img, true
}

func (s *dirStream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream already closed")
	}
	s.closed = true
	return nil
}

// decodeFile decodes a JPEG, PNG or BMP file.
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // replay directory is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("could not open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
