// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Capture loop constants
const (
	// DefaultCaptureInterval is the period between two capture ticks
	DefaultCaptureInterval = 1800 * time.Millisecond

	// DefaultDebounceCooldown is the minimum interval between two cues for the same student
	DefaultDebounceCooldown = 3 * time.Second

	// DebouncePruneFactor is how many cooldown windows a debounce entry survives before pruning
	DebouncePruneFactor = 10

	// DefaultRecentLimit is the number of recent matches kept for display
	DefaultRecentLimit = 10
)

// Camera constants
const (
	// DefaultFacingMode is the preferred camera facing mode hint
	DefaultFacingMode = "user"

	// DefaultIdealWidth and DefaultIdealHeight are the resolution hints sent to the device
	DefaultIdealWidth  = 1920
	DefaultIdealHeight = 1080

	// FallbackFrameWidth and FallbackFrameHeight size the raster when the stream
	// has not reported its dimensions yet
	FallbackFrameWidth  = 640
	FallbackFrameHeight = 480

	// DefaultJPEGQuality is the encode quality for submitted frames (0.85)
	DefaultJPEGQuality = 85

	// DefaultDevice is the V4L2 device node opened by the ffmpeg device
	DefaultDevice = "/dev/video0"
)

// API constants
const (
	// FrameFieldName is the multipart field carrying the captured frame
	FrameFieldName = "image"

	// FrameFileName is the file name sent with the captured frame
	FrameFileName = "frame.jpg"
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
