package middleware

import (
	"net/http"

	"github.com/WillKirkmanM/playground/internal/metrics"
)

// metricsMiddleware adapts Prometheus metrics into Middleware
type metricsMiddleware struct {
	m *metrics.Metrics
}

// NewMetrics constructs the metrics middleware over the process-wide
// collector
func NewMetrics() Middleware {
	return &metricsMiddleware{m: metrics.Default()}
}

// Wrap instruments each request with Prometheus metrics
func (mm *metricsMiddleware) Wrap(next http.Handler) http.Handler {
	return mm.m.Middleware()(next)
}
