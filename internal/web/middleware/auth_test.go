package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		query    string
		expected int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing", "secret", "", "", http.StatusUnauthorized},
		{"bearer ok", "secret", "Bearer secret", "", http.StatusOK},
		{"bearer wrong", "secret", "Bearer nope", "", http.StatusUnauthorized},
		{"basic scheme", "secret", "Basic secret", "", http.StatusUnauthorized},
		{"query ok", "secret", "", "secret", http.StatusOK},
		{"header wins over query", "secret", "Bearer nope", "secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/kiosk"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireToken(tt.token)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://attendu.example.com, https://other.example.com")

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"https://attendu.example.com", true},
		{"https://evil.example.com", false},
		{"http://localhost.evil.com", false},
		{"", false},
	}

	handler := CORS()(okHandler())
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/kiosk", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("expected origin %q to be allowed, got %q", tt.origin, got)
			}
			if !tt.allowed && got != "" {
				t.Errorf("expected origin %q to be rejected, got %q", tt.origin, got)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/kiosk/start", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()

	called := false
	CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).ServeHTTP(rec, req)

	if called {
		t.Error("preflight must not reach the handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
