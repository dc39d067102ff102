package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/WillKirkmanM/playground/internal/middleware"
)

// Inline error messages streamed into the response body. The forbidden
// import text is part of the wire contract consumed by the editor.
const (
	msgEmptyCode       = "Error: El código no puede estar vacío"
	msgCodeTooLong     = "Error: El código excede el tamaño máximo permitido (%d caracteres)"
	msgForbiddenImport = "Error: Import prohibido por seguridad: %s"
	msgTimeout         = "La ejecución excedió el tiempo límite"
)

// executeRequest is the JSON body of POST /api/execute
type executeRequest struct {
	Code string `json:"code"`
}

// handleExecute orchestrates a single execution request
// Validation failures before the first streamed byte map to HTTP status
// codes; everything after commits status 200 and reports problems as
// inline Error lines, since the stream cannot be rewound.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := middleware.ClientIP(r)

	if !s.limiter.Allow(clientID) {
		s.log.Warn(r.Context(), "rate limit exceeded",
			slog.String("client", clientID),
		)
		s.limiter.Reject(w)
		return
	}

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	// The body streams as plain text; clients read to EOF
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.log.Error(r.Context(), "response transport does not support streaming", nil,
			slog.String("client", clientID),
		)
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Bound the body read ahead of decoding; JSON escaping can roughly
	// double the source size, plus framing slack
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.Execution.MaxCodeLength)*2+1024)

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	out := &flushWriter{w: w, flusher: flusher}

	if req.Code == "" {
		fmt.Fprint(out, msgEmptyCode)
		return
	}
	if len(req.Code) > s.config.Execution.MaxCodeLength {
		fmt.Fprintf(out, msgCodeTooLong, s.config.Execution.MaxCodeLength)
		return
	}

	if hit, name := s.filter.ContainsBlacklistedImport(req.Code); hit {
		s.log.Warn(r.Context(), "blacklisted import rejected",
			slog.String("client", clientID),
			slog.String("import", name),
		)
		fmt.Fprintf(out, msgForbiddenImport, name)
		return
	}

	// One absolute deadline covers compilation and the program run;
	// client disconnect cancels through the request context
	ctx, cancel := context.WithTimeout(r.Context(), s.config.Execution.Timeout)
	defer cancel()

	if err := s.exec.Execute(ctx, req.Code, out); err != nil {
		s.log.Error(r.Context(), "execution failed", err,
			slog.String("client", clientID),
			slog.String("path", r.URL.Path),
		)
		// Status is already committed; the error travels in the body
		fmt.Fprintf(out, "\nError: %s", renderExecError(err))
	}
}

// renderExecError maps executor failures to the user-facing message
// Timeouts are distinguished by cause; other failures surface their
// error text after the already-streamed compiler or program output
func renderExecError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	return err.Error()
}

// flushWriter forwards each chunk to the client immediately
// Every write is followed by a flush so output appears as the child
// produces it rather than when the handler returns
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if n > 0 {
		fw.flusher.Flush()
	}
	return n, err
}
