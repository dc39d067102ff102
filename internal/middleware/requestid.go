package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID identifies one gateway transaction in logs and
// responses
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// requestID assigns a fresh UUID to every request
// The ID travels in the response header and the request context so log
// entries for one run can be stitched together.
type requestID struct{}

// NewRequestID constructs the request ID middleware
func NewRequestID() Middleware {
	return &requestID{}
}

// Wrap generates the ID and stores it in header and context
func (requestID) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set(HeaderRequestID, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
