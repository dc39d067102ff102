package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/WillKirkmanM/playground/internal/config"
	"github.com/WillKirkmanM/playground/internal/logging"
	"github.com/WillKirkmanM/playground/internal/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TruncationMarker is the literal suffix appended when program output
// reaches the configured limit. It is additional to MaxOutputLength:
// clients always receive the full allowed prefix plus this marker.
const TruncationMarker = "\n... (output truncated)"

// readChunkSize is the fixed size of pooled read buffers
const readChunkSize = 4096

// bufPool reuses read buffers across executions to avoid per-request
// allocations under concurrent load
var bufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, readChunkSize)
		return &buf
	},
}

// Executor is the single capability the gateway depends on: given a
// context, source text and a writer, stream bounded combined output.
// The cached variant wraps the raw variant behind this same interface,
// allowing composition without inheritance.
type Executor interface {
	Execute(ctx context.Context, source string, w io.Writer) error
}

// GoExecutor runs submitted source through the Go toolchain as a
// subprocess. Each call owns one temporary file, one child process and
// one read loop; the type is safe for concurrent use from any number
// of handlers.
type GoExecutor struct {
	goBinary        string
	tempDir         string
	maxOutputLength int
	log             *logging.Logger
	metrics         *metrics.Metrics
}

// NewGoExecutor creates an executor bound to the configured toolchain
// binary, temp directory and output limit
func NewGoExecutor(cfg config.ExecutionConfig, log *logging.Logger, m *metrics.Metrics) *GoExecutor {
	return &GoExecutor{
		goBinary:        cfg.GoBinary,
		tempDir:         cfg.TempDir,
		maxOutputLength: cfg.MaxOutputLength,
		log:             log,
		metrics:         m,
	}
}

// Execute materialises the source to a temporary file, runs it under the
// supplied context and streams the child's combined stdout+stderr to w
// as it is produced, bounded by MaxOutputLength bytes plus the
// truncation marker.
// The child is placed in its own process group so cancellation kills
// descendants (go run re-spawns the compiled binary as a grandchild).
// The temporary file is unlinked on every exit path.
// Time Complexity: O(n) where n is produced output size
// Space Complexity: O(1) beyond one pooled read buffer
func (e *GoExecutor) Execute(ctx context.Context, source string, w io.Writer) error {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.ExecutionStarted()
		defer func() {
			e.metrics.ExecutionFinished(time.Since(start))
		}()
	}

	if e.log != nil {
		var span trace.Span
		ctx, span = e.log.StartSpan(ctx, "executor.run",
			attribute.Int("source_bytes", len(source)),
		)
		defer span.End()
	}

	path, err := e.writeTempFile(source)
	if err != nil {
		return err
	}
	defer e.removeTempFile(path)

	cmd := exec.CommandContext(ctx, e.goBinary, "run", path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Kill the whole group on cancellation, not just the direct child
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
	// Bound Wait in case a grandchild inherits the output pipe
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}
	// Merge stderr into the same pipe so output interleaves in
	// production order
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	truncated, streamErr := e.streamOutput(stdout, w)
	if truncated {
		// Output budget exhausted: stop the child, ignore its exit state
		_ = killGroup(cmd)
		if e.metrics != nil {
			e.metrics.RecordTruncation()
		}
	}
	if streamErr != nil {
		// The client is gone or the pipe broke; do not wait for the
		// child to finish on its own
		_ = killGroup(cmd)
	}

	waitErr := cmd.Wait()

	switch {
	case streamErr != nil:
		return streamErr
	case truncated:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("execution cancelled: %w", ctx.Err())
	case waitErr != nil:
		return fmt.Errorf("execution failed: %w", waitErr)
	}
	return nil
}

// writeTempFile materialises the source as a uniquely named .go file
// in the configured temp directory
func (e *GoExecutor) writeTempFile(source string) (string, error) {
	tmp, err := os.CreateTemp(e.tempDir, "playground-*.go")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()

	if _, err := tmp.WriteString(source); err != nil {
		tmp.Close()
		e.removeTempFile(path)
		return "", fmt.Errorf("failed to write source: %w", err)
	}
	if err := tmp.Close(); err != nil {
		e.removeTempFile(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return path, nil
}

// removeTempFile unlinks the run artifact, retrying transient failures
// a bounded number of times so cleanup never outlives the request
func (e *GoExecutor) removeTempFile(path string) {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = os.Remove(path); err == nil || os.IsNotExist(err) {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	if e.log != nil {
		e.log.Warn(context.Background(), "failed to remove temp file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// streamOutput forwards child output to w in fixed-size chunks until
// EOF, a write failure or the output budget is exhausted.
// Returns truncated=true once the budget is exhausted and the marker write
// was attempted; a non-nil error reports stream I/O failures only (including
// a failed marker write), never child exit status.
func (e *GoExecutor) streamOutput(r io.Reader, w io.Writer) (bool, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	total := 0
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if total+n > e.maxOutputLength {
				// Write only the allowed prefix, then the marker
				allowed := e.maxOutputLength - total
				if allowed > 0 {
					if _, werr := w.Write(chunk[:allowed]); werr != nil {
						return false, fmt.Errorf("failed to write output: %w", werr)
					}
				}
				if _, werr := io.WriteString(w, TruncationMarker); werr != nil {
					return true, fmt.Errorf("failed to write output: %w", werr)
				}
				return true, nil
			}
			if _, werr := w.Write(chunk); werr != nil {
				return false, fmt.Errorf("failed to write output: %w", werr)
			}
			total += n
		}
		if rerr == io.EOF {
			return false, nil
		}
		if rerr != nil {
			// The pipe is torn down when the context cancels the child;
			// let the caller classify that through ctx.Err()
			if isClosedPipe(rerr) {
				return false, nil
			}
			return false, fmt.Errorf("failed to read output: %w", rerr)
		}
	}
}

// killGroup sends SIGKILL to the child's process group
// The negative pid addresses the whole group created by Setpgid
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// isClosedPipe reports reads against an already-closed pipe, which
// happen when cancellation kills the child mid-read
func isClosedPipe(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
