package executor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/WillKirkmanM/playground/internal/config"
	"github.com/WillKirkmanM/playground/internal/metrics"
)

// cacheEntry stores the captured output of one successful execution
// lastAccess drives both LRU eviction and TTL expiry; accessCount is
// kept for observability
type cacheEntry struct {
	result      []byte
	lastAccess  time.Time
	accessCount int
}

// CachedExecutor wraps an Executor with a content-addressed result cache
// Identical source text deterministically produces identical observable
// output for pure programs, so replays are indistinguishable from first
// runs - including any truncation marker captured originally.
// Programs that depend on wall time or randomness will replay their
// first observed output for up to TTL; callers that need fresh runs must
// mutate the source, or the deployer disables the cache with MaxSize 0.
type CachedExecutor struct {
	inner    Executor
	maxSize  int
	ttl      time.Duration
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	metrics  *metrics.Metrics
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCachedExecutor creates the cache wrapper and starts its background
// cleaner. A MaxSize of zero disables caching: every call delegates
// straight to the inner executor and no cleaner runs.
func NewCachedExecutor(inner Executor, cfg config.CacheConfig, m *metrics.Metrics) *CachedExecutor {
	c := &CachedExecutor{
		inner:   inner,
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		entries: make(map[string]*cacheEntry),
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	if c.maxSize > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Execute replays a cached byte sequence when the same source was run
// within TTL, otherwise delegates to the wrapped executor while teeing
// its output into the cache.
// A miss under concurrent identical submissions may execute redundantly;
// the last writer wins the slot. This race is accepted over per-key
// single-flight.
// Time Complexity: O(1) lookup, O(n) replay where n is result size
// Space Complexity: O(n) capture buffer per miss
func (c *CachedExecutor) Execute(ctx context.Context, source string, w io.Writer) error {
	if c.maxSize == 0 {
		return c.inner.Execute(ctx, source, w)
	}

	key := cacheKey(source)

	c.mu.RLock()
	entry, ok := c.entries[key]
	var result []byte
	hit := false
	if ok && time.Since(entry.lastAccess) <= c.ttl {
		result = entry.result
		hit = true
	}
	c.mu.RUnlock()

	if hit {
		if c.metrics != nil {
			c.metrics.RecordCacheHit()
		}
		// Stats move to a separate goroutine so the replay path never
		// waits on the write lock
		go c.touch(key)
		if _, err := w.Write(result); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}

	// Fan the child's output out to the client and a capture buffer
	var captured bytes.Buffer
	tee := io.MultiWriter(w, &captured)

	if err := c.inner.Execute(ctx, source, tee); err != nil {
		// Failures are never cached
		return err
	}

	c.store(key, captured.Bytes())
	return nil
}

// Stop terminates the background cleaner
func (c *CachedExecutor) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Len returns the current number of cached entries
func (c *CachedExecutor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// touch refreshes access metadata for a hit
func (c *CachedExecutor) touch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.lastAccess = time.Now()
		entry.accessCount++
	}
}

// store inserts a captured result, evicting the least recently used
// entry when the cache is full.
// A linear scan is sufficient at the configured sizes; a heap would not
// pay for itself.
// Time Complexity: O(n) on eviction where n is MaxSize
// Space Complexity: O(1) beyond the stored result
func (c *CachedExecutor) store(key string, result []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{
		result:      result,
		lastAccess:  time.Now(),
		accessCount: 1,
	}
}

// evictOldest removes the entry with the smallest lastAccess
// Caller must hold the write lock
func (c *CachedExecutor) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanupLoop deletes expired entries every TTL/2 until stopped
func (c *CachedExecutor) cleanupLoop() {
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired drops every entry idle beyond TTL
func (c *CachedExecutor) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.lastAccess) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// cacheKey derives the content address of a source submission
func cacheKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
