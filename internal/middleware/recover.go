package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/WillKirkmanM/playground/internal/logging"
)

// recovery catches panics from downstream handlers so one bad request
// cannot take down the process
type recovery struct {
	log *logging.Logger
}

// NewRecovery constructs the panic recovery middleware
func NewRecovery(log *logging.Logger) Middleware {
	return &recovery{log: log}
}

// Wrap logs the panic with its stack and returns 500 when the response
// is still uncommitted. If bytes were already streamed, only the log
// entry is possible.
func (rc *recovery) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cw := &committedWriter{ResponseWriter: w}

		defer func() {
			if rec := recover(); rec != nil {
				rc.log.Error(r.Context(), "recovered from panic",
					fmt.Errorf("panic: %v", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				if !cw.committed {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(cw, r)
	})
}

// committedWriter tracks whether any part of the response has been sent
type committedWriter struct {
	http.ResponseWriter
	committed bool
}

func (cw *committedWriter) WriteHeader(code int) {
	cw.committed = true
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *committedWriter) Write(b []byte) (int, error) {
	cw.committed = true
	return cw.ResponseWriter.Write(b)
}

// Flush forwards flushes so streaming responses keep working through
// the chain
func (cw *committedWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
