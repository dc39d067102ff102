package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/WillKirkmanM/playground/internal/config"
	"github.com/WillKirkmanM/playground/internal/executor"
	"github.com/WillKirkmanM/playground/internal/logging"
	"github.com/WillKirkmanM/playground/internal/metrics"
	"github.com/WillKirkmanM/playground/internal/middleware"
	"github.com/WillKirkmanM/playground/internal/safety"
)

// Server represents the playground server instance
// This struct encapsulates all gateway dependencies using dependency injection
// The composition approach allows for easy testing and component substitution
type Server struct {
	httpServer *http.Server
	config     *config.Config
	log        *logging.Logger
	limiter    *middleware.RateLimiter
	filter     *safety.Filter
	exec       executor.Executor
	cache      *executor.CachedExecutor
	middleware []middleware.Middleware
}

// NewServer creates a new playground server instance using factory pattern
// The factory wires admission, safety filtering, the cached executor and
// the middleware chain from configuration
// Time Complexity: O(1) - fixed component initialisation
// Space Complexity: O(1) - fixed dependency graph
func NewServer(cfg *config.Config, log *logging.Logger) *Server {
	m := metrics.Default()

	raw := executor.NewGoExecutor(cfg.Execution, log, m)
	cached := executor.NewCachedExecutor(raw, cfg.Cache, m)

	// Build middleware chain using chain of responsibility pattern
	// Recovery first so panics anywhere downstream are contained
	middlewares := []middleware.Middleware{
		middleware.NewRecovery(log),
		middleware.NewRequestID(),
		middleware.NewSecurityHeaders(cfg.Server),
		middleware.NewMetrics(),
	}

	// WriteTimeout stays zero on purpose: executions stream their output
	// for up to the execution deadline and must not be cut by the server
	httpServer := &http.Server{
		Addr:        cfg.ListenAddr(),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		config:     cfg,
		log:        log,
		limiter:    middleware.NewRateLimiter(cfg.RateLimit, m),
		filter:     safety.NewFilter(cfg.Safety.BlacklistedImports),
		exec:       cached,
		cache:      cached,
		middleware: middlewares,
	}
}

// Start begins serving HTTP requests with graceful shutdown support
// Uses context for coordinated shutdown across all components
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.Handler = s.buildHandler()

	// Channel for server errors - prevents blocking on error conditions
	errChan := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Sweep abandoned run artifacts in the background
	go s.startTempSweeper(ctx)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully stops the server and all background processes
// Implements graceful shutdown pattern to prevent connection drops
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.limiter.Stop()
	s.cache.Stop()

	return nil
}

// buildHandler constructs the HTTP handler with routes and middleware chain
// Implements chain of responsibility pattern for request processing
// Time Complexity: O(m) where m is number of middleware for chain construction
// Space Complexity: O(m) for middleware chain storage
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/execute", s.handleExecute)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Default().Handler())
	mux.Handle("/", newStaticHandler(s.config.Server.StaticFilesDir))

	// Request logging sits closest to the mux so it observes the final
	// status after every other middleware ran
	var handler http.Handler = s.log.HTTPRequestLogger()(mux)

	// Apply middleware in reverse order to build chain correctly
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i].Wrap(handler)
	}

	return handler
}

// handleHealth reports service liveness for orchestration probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"%s"}`, s.config.Tracing.ServiceName)
}

// startTempSweeper periodically removes stale run artifacts
// Unlink retries in the executor are bounded, so a crashed handler can
// leak a file; the sweeper is the backstop.
func (s *Server) startTempSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.Execution.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepTempFiles()
		}
	}
}

// sweepTempFiles unlinks playground source files older than one
// cleanup interval
func (s *Server) sweepTempFiles() {
	pattern := filepath.Join(s.config.Execution.TempDir, "playground-*.go")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-s.config.Execution.CleanupInterval)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}

	if removed > 0 {
		s.log.Info(context.Background(), "temp sweeper removed stale artifacts",
			slog.Int("count", removed),
		)
	}
}
