package attendu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// refreshPath is the session refresh endpoint, relative to the API base.
const refreshPath = "/auth/refresh"

// nullPayload is what callers receive for an empty or unparsable body.
var nullPayload = json.RawMessage("null")

// Request describes one logical API call. Body is kept as bytes so the
// replay after a session refresh sends exactly the same payload.
type Request struct {
	Path       string
	Method     string
	Header     http.Header
	Body       []byte
	AllowRetry bool
}

// NewRequest returns a request with session recovery enabled.
func NewRequest(method, path string, body []byte) Request {
	return Request{
		Path:       path,
		Method:     method,
		Header:     make(http.Header),
		Body:       body,
		AllowRetry: true,
	}
}

// RequestError is returned for any non-2xx response that survived the
// session recovery path.
type RequestError struct {
	Status  int
	Message string
	Payload json.RawMessage
}

func (e *RequestError) Error() string {
	return e.Message
}

func newRequestError(status int, payload json.RawMessage) *RequestError {
	message := fmt.Sprintf("request failed (%d)", status)
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		message = body.Message
	}
	return &RequestError{Status: status, Message: message, Payload: payload}
}

// Do performs the request. A 401 on a retryable request triggers exactly one
// refresh call; if it succeeds the request is replayed once with retries
// disabled, otherwise the original 401 is returned. The parsed body is
// returned for successful responses, and attached to the RequestError otherwise.
func (c *Client) Do(ctx context.Context, r Request) (json.RawMessage, error) {
	status, payload, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && r.AllowRetry {
		err := c.refresh(ctx)
		if err == nil {
			replay := r
			replay.AllowRetry = false
			return c.Do(ctx, replay)
		}
		c.logger.Debug("session refresh failed", "path", r.Path, "error", err)
	}

	if !isSuccess(status) {
		return payload, newRequestError(status, payload)
	}
	return payload, nil
}

// send performs a single round trip and returns the status and parsed body.
func (c *Client) send(ctx context.Context, r Request) (int, json.RawMessage, error) {
	var bodyReader io.Reader
	if r.Body != nil {
		bodyReader = bytes.NewReader(r.Body)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(r.Path), bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("could not create request: %w", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return 0, nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("could not read response body: %w", err)
	}

	c.captureResponse(r.Path, resp.StatusCode, body)

	return resp.StatusCode, parsePayload(body), nil
}

// refresh renews the session cookies. It never goes through Do, so a failed
// refresh cannot trigger another refresh.
func (c *Client) refresh(ctx context.Context) error {
	status, payload, err := c.send(ctx, Request{Path: refreshPath, Method: http.MethodPost})
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return newRequestError(status, payload)
	}
	return nil
}

// parsePayload returns the body as JSON, or null when it is empty or invalid.
func parsePayload(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nullPayload
	}
	return json.RawMessage(body)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// doJSON performs the request and unmarshals the response into the result type.
// A null payload leaves the result at its zero value.
func doJSON[T any](ctx context.Context, c *Client, r Request) (*T, error) {
	payload, err := c.Do(ctx, r)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// doGetJSON performs a GET request and unmarshals the JSON response.
func doGetJSON[T any](ctx context.Context, c *Client, path string) (*T, error) {
	return doJSON[T](ctx, c, NewRequest(http.MethodGet, path, nil))
}

func marshalJSON(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}
	return body, nil
}

// doPostFile performs a multipart POST with a single file field.
func doPostFile[T any](ctx context.Context, c *Client, path, field, fileName, contentType string, data []byte) (*T, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("could not write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %w", err)
	}

	r := NewRequest(http.MethodPost, path, body.Bytes())
	r.Header.Set("Content-Type", writer.FormDataContentType())
	return doJSON[T](ctx, c, r)
}

// IsUnauthorized returns true if the error is a 401 response.
func IsUnauthorized(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusUnauthorized
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound
}
