package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed scan.yaml
var scanYAML []byte

type Config struct {
	Attendu AttenduConfig
	Kiosk   KioskConfig
	Camera  CameraConfig
	Web     WebConfig
	Scan    ScanConfig
}

type AttenduConfig struct {
	URL      string // base URL of the Attendu backend, the client appends /api
	Email    string
	Password string
}

// HasCredentials reports whether a login fallback is possible.
func (c *AttenduConfig) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}

type KioskConfig struct {
	ClassID     int64         // default capture target, 0 means "ask on the command line"
	Interval    time.Duration // capture tick period
	Cooldown    time.Duration // per-student cue cooldown
	RecentLimit int           // recent matches kept for display
}

type CameraConfig struct {
	Device      string // V4L2 device node
	FFmpegPath  string
	Width       int // resolution hint
	Height      int // resolution hint
	FacingMode  string
	JPEGQuality int
}

type WebConfig struct {
	Token string // bearer token for the dashboard control endpoints, empty disables auth
}

type ScanConfig struct {
	States        map[string]StateStyle `yaml:"states"`
	AlreadySuffix string                `yaml:"already_suffix"`
}

type StateStyle struct {
	Label string `yaml:"label"`
	Color string `yaml:"color"`
}

// Style returns the label and color for a state key, falling back to the key itself.
func (c *ScanConfig) Style(key string) StateStyle {
	if s, ok := c.States[key]; ok {
		return s
	}
	return StateStyle{Label: key, Color: "#ffffff"}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envMillis reads a positive millisecond count from the environment.
func envMillis(key string, defaultVal time.Duration) time.Duration {
	n := envInt(key, 0)
	if n == 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Millisecond
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// LoadScan parses the embedded scan state labels.
func LoadScan() ScanConfig {
	var scan ScanConfig
	if err := yaml.Unmarshal(scanYAML, &scan); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded scan.yaml: " + err.Error())
	}
	return scan
}

func Load() *Config {
	return &Config{
		Attendu: AttenduConfig{
			URL:      envString("ATTENDU_URL", "http://localhost:5000"),
			Email:    os.Getenv("ATTENDU_EMAIL"),
			Password: os.Getenv("ATTENDU_PASSWORD"),
		},
		Kiosk: KioskConfig{
			ClassID:     int64(envInt("KIOSK_CLASS_ID", 0)),
			Interval:    envMillis("KIOSK_INTERVAL_MS", constants.DefaultCaptureInterval),
			Cooldown:    envMillis("KIOSK_COOLDOWN_MS", constants.DefaultDebounceCooldown),
			RecentLimit: envInt("KIOSK_RECENT_LIMIT", constants.DefaultRecentLimit),
		},
		Camera: CameraConfig{
			Device:      envString("KIOSK_DEVICE", constants.DefaultDevice),
			FFmpegPath:  envString("KIOSK_FFMPEG", "ffmpeg"),
			Width:       envInt("KIOSK_WIDTH", constants.DefaultIdealWidth),
			Height:      envInt("KIOSK_HEIGHT", constants.DefaultIdealHeight),
			FacingMode:  envString("KIOSK_FACING_MODE", constants.DefaultFacingMode),
			JPEGQuality: min(envInt("KIOSK_JPEG_QUALITY", constants.DefaultJPEGQuality), 100),
		},
		Web: WebConfig{
			Token: os.Getenv("KIOSK_WEB_TOKEN"),
		},
		Scan: LoadScan(),
	}
}
