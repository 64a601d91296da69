package attendu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCredentials is returned by EnsureSession when the refresh failed and
// there is nothing to log in with.
var ErrNoCredentials = errors.New("no stored session and no credentials configured")

// Refresh renews the session cookies. It is a plain call without the
// recovery path, so a failure is reported as is.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

// Bootstrap tries to resume an existing session at startup and records the
// result in the store. It reports whether the session is authenticated.
func Bootstrap(ctx context.Context, c *Client, store *SessionStore) bool {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Debug("session bootstrap failed", "error", err)
		store.clear()
		return false
	}
	store.setAuthenticated(nil)
	return true
}

// Login authenticates with email and password. The server answers with
// session cookies that the client keeps for every later call.
func Login(ctx context.Context, c *Client, store *SessionStore, email, password string) (*UserSummary, error) {
	r := NewRequest(http.MethodPost, "/auth/login", nil)
	r.AllowRetry = false
	body, err := marshalJSON(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	r.Body = body
	r.Header.Set("Content-Type", "application/json")

	resp, err := doJSON[loginResponse](ctx, c, r)
	if err != nil {
		store.clear()
		return nil, fmt.Errorf("could not log in: %w", err)
	}

	user := resp.user()
	store.setAuthenticated(user)
	return user, nil
}

// Logout ends the session on the server. The store is cleared even when the
// server call fails, since the local session is no longer trusted.
func Logout(ctx context.Context, c *Client, store *SessionStore) error {
	defer store.clear()

	r := NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AllowRetry = false
	if _, err := c.Do(ctx, r); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// EnsureSession resumes the session via refresh and falls back to a login
// with the given credentials.
func EnsureSession(ctx context.Context, c *Client, store *SessionStore, email, password string) (Session, error) {
	if Bootstrap(ctx, c, store) {
		return store.Get(), nil
	}
	if email == "" || password == "" {
		return store.Get(), ErrNoCredentials
	}
	if _, err := Login(ctx, c, store, email, password); err != nil {
		return store.Get(), err
	}
	return store.Get(), nil
}
