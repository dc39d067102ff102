package middleware

import (
	"net/http"

	"github.com/WillKirkmanM/playground/internal/config"
)

// securityHeaders applies the baseline security headers to every response
// The service is an API plus a static editor bundle; it must never be
// framed, sniffed or allowed to load foreign resources.
type securityHeaders struct {
	allowedOrigins []string
}

// NewSecurityHeaders constructs the security and CORS middleware from
// server configuration
func NewSecurityHeaders(cfg config.ServerConfig) Middleware {
	return &securityHeaders{allowedOrigins: cfg.AllowedOrigins}
}

// Wrap sets security headers and answers CORS preflight requests
// Headers are written before the wrapped handler runs so they apply to
// streamed responses whose status commits early.
func (sh *securityHeaders) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")

		if origin := sh.corsOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// corsOrigin resolves the Access-Control-Allow-Origin value for a
// request origin, or empty when the origin is not allowed
func (sh *securityHeaders) corsOrigin(origin string) string {
	for _, allowed := range sh.allowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin && origin != "" {
			return origin
		}
	}
	return ""
}
