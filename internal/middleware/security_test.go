package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/WillKirkmanM/playground/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// TestSecurityHeadersPresent verifies the baseline headers appear on
// every response
func TestSecurityHeadersPresent(t *testing.T) {
	mw := NewSecurityHeaders(config.ServerConfig{AllowedOrigins: []string{"*"}})
	h := mw.Wrap(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected nosniff header")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected frame deny header")
	}
	if w.Header().Get("Content-Security-Policy") != "default-src 'self'" {
		t.Error("Expected CSP header")
	}
}

// TestCORSWildcard verifies the wildcard configuration allows any origin
func TestCORSWildcard(t *testing.T) {
	mw := NewSecurityHeaders(config.ServerConfig{AllowedOrigins: []string{"*"}})
	h := mw.Wrap(okHandler)

	r := httptest.NewRequest("POST", "/api/execute", nil)
	r.Header.Set("Origin", "https://editor.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard CORS, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

// TestCORSExplicitList verifies only configured origins are echoed back
func TestCORSExplicitList(t *testing.T) {
	mw := NewSecurityHeaders(config.ServerConfig{
		AllowedOrigins: []string{"https://editor.example"},
	})
	h := mw.Wrap(okHandler)

	r := httptest.NewRequest("POST", "/api/execute", nil)
	r.Header.Set("Origin", "https://editor.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Header().Get("Access-Control-Allow-Origin") != "https://editor.example" {
		t.Error("Expected configured origin allowed")
	}

	r2 := httptest.NewRequest("POST", "/api/execute", nil)
	r2.Header.Set("Origin", "https://evil.example")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	if w2.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected unknown origin rejected")
	}
}

// TestPreflightShortCircuits verifies OPTIONS requests are answered
// without reaching the wrapped handler
func TestPreflightShortCircuits(t *testing.T) {
	reached := false
	mw := NewSecurityHeaders(config.ServerConfig{AllowedOrigins: []string{"*"}})
	h := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	r := httptest.NewRequest("OPTIONS", "/api/execute", nil)
	r.Header.Set("Origin", "https://editor.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if reached {
		t.Error("Expected preflight to short-circuit the chain")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
}

// TestRequestIDAssigned verifies every request receives a fresh ID in
// header and context
func TestRequestIDAssigned(t *testing.T) {
	var fromCtx string
	h := NewRequestID().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	header := w.Header().Get(HeaderRequestID)
	if header == "" || fromCtx == "" {
		t.Fatal("Expected request ID in header and context")
	}
	if header != fromCtx {
		t.Errorf("Header %q and context %q disagree", header, fromCtx)
	}

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, httptest.NewRequest("GET", "/", nil))
	if w2.Header().Get(HeaderRequestID) == header {
		t.Error("Expected a fresh ID per request")
	}
}
