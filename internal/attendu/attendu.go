package attendu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Client is the session-aware client for the Attendu API. Every call carries
// the cookies the server issued at login; an expired session is recovered
// with a single refresh per logical call.
type Client struct {
	Url        string
	parsedURL  *url.URL
	httpClient *http.Client
	captureDir string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached when the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for refresh and capture diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the Attendu instance at rawURL.
// All requests are sent to paths under rawURL + "/api".
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	apiURL := strings.TrimRight(rawURL, "/") + "/api"
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Attendu URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Attendu URL: %q has no scheme or host", rawURL)
	}

	c := &Client{Url: apiURL, parsedURL: parsed, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("could not create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

// resolveURL builds a full URL from the base API URL and the given path.
// A query string in the path (e.g. "classes?archived=1") is kept as is.
func (c *Client) resolveURL(path string) string {
	path = strings.TrimPrefix(path, "/")
	if pathPart, query, ok := strings.Cut(path, "?"); ok {
		result := c.parsedURL.JoinPath(pathPart)
		result.RawQuery = query
		return result.String()
	}
	return c.parsedURL.JoinPath(path).String()
}

// SetCaptureDir enables API response capturing to the specified directory.
// Pass an empty string to disable capturing.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// captureResponse saves the API response body to a file if capturing is enabled.
func (c *Client) captureResponse(endpoint string, status int, body []byte) {
	if c.captureDir == "" {
		return
	}

	// Sanitize endpoint for filename
	name, _, _ := strings.Cut(endpoint, "?")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.TrimPrefix(name, "_")
	timestamp := time.Now().Format("20060102_150405.000")
	name = fmt.Sprintf("%s_%d_%s.json", name, status, timestamp)

	path := filepath.Join(c.captureDir, name)

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err == nil {
		body = prettyJSON.Bytes()
	}

	if err := os.WriteFile(path, body, 0600); err != nil {
		c.logger.Warn("failed to capture response", "path", path, "error", err)
	}
}
