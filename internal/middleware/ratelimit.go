package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/WillKirkmanM/playground/internal/config"
	"github.com/WillKirkmanM/playground/internal/metrics"

	"golang.org/x/time/rate"
)

// bucketIdleTimeout is how long an untouched client bucket survives
// before the sweeper reclaims it
const bucketIdleTimeout = 10 * time.Minute

// RateLimitMessage is the 429 response body. The leading words are part
// of the wire contract consumed by the editor frontend.
const RateLimitMessage = "Demasiadas peticiones. Por favor, espera un momento antes de intentarlo de nuevo."

// tokenBucket implements the token bucket algorithm for one client
// Allows bursts up to capacity while holding the long-run mean at the
// refill rate. Fractional tokens accumulate between calls, so refill
// is continuous rather than stepped.
// Time Complexity: O(1) for token operations
// Space Complexity: O(1) per bucket instance
type tokenBucket struct {
	capacity   float64   // Maximum tokens in bucket
	tokens     float64   // Current available tokens
	refillRate float64   // Tokens added per second
	lastRefill time.Time // Last time bucket was refilled
}

// tryConsume refills the bucket from elapsed time and attempts to take
// one token. Caller holds the limiter lock.
// Time Complexity: O(1) - simple arithmetic operations
// Space Complexity: O(1) - no additional allocations
func (tb *tokenBucket) tryConsume(now time.Time) bool {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter manages admission control for incoming requests
// Combines a global token bucket shielding the whole service with
// per-client buckets keyed by derived client identity. Buckets are
// created lazily at full capacity and swept after prolonged idleness.
// Time Complexity: O(1) for admission checks
// Space Complexity: O(n) where n is number of active clients
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*tokenBucket // Per-client token buckets
	capacity   float64                 // Bucket capacity (requests per minute)
	refillRate float64                 // Tokens per second
	global     *rate.Limiter           // Service-wide guard, nil when disabled
	metrics    *metrics.Metrics
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter creates the admission controller from configuration
// Capacity equals MaxRequestsPerMinute; the refill rate is the same
// budget spread over sixty seconds.
func NewRateLimiter(cfg config.RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	rl := &RateLimiter{
		buckets:    make(map[string]*tokenBucket),
		capacity:   float64(cfg.MaxRequestsPerMinute),
		refillRate: float64(cfg.MaxRequestsPerMinute) / 60.0,
		metrics:    m,
		stopCh:     make(chan struct{}),
	}
	if cfg.GlobalQPS > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalQPS), cfg.GlobalBurst)
	}
	go rl.sweepIdleBuckets()
	return rl
}

// Allow decides whether one request from the given client may proceed
// Admission for one client never touches another client's bucket, and
// outcomes of concurrent calls from the same client are serialized by
// the map lock.
// Time Complexity: O(1) - hash map lookup plus arithmetic
// Space Complexity: O(1) per new client
func (rl *RateLimiter) Allow(clientID string) bool {
	if rl.global != nil && !rl.global.Allow() {
		return false
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[clientID]
	if !exists {
		// First sighting: full bucket minus the token this request spends
		rl.buckets[clientID] = &tokenBucket{
			capacity:   rl.capacity,
			tokens:     rl.capacity - 1,
			refillRate: rl.refillRate,
			lastRefill: now,
		}
		return true
	}
	return bucket.tryConsume(now)
}

// Reject writes the 429 response for a denied request
// The handler owns ordering (method and identity checks come first),
// so rejection rendering lives here rather than in a route middleware.
func (rl *RateLimiter) Reject(w http.ResponseWriter) {
	if rl.metrics != nil {
		rl.metrics.RecordRateLimited()
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(rl.capacity)))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Retry-After", "60")
	http.Error(w, RateLimitMessage, http.StatusTooManyRequests)
}

// Stop terminates the idle-bucket sweeper
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// sweepIdleBuckets reclaims buckets whose clients have gone quiet
// Without this the map would grow without bound for the lifetime of
// the process.
func (rl *RateLimiter) sweepIdleBuckets() {
	ticker := time.NewTicker(bucketIdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for id, bucket := range rl.buckets {
				if now.Sub(bucket.lastRefill) > bucketIdleTimeout {
					delete(rl.buckets, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// ClientIP derives a stable client identity from request metadata
// Checks proxy headers before falling back to the transport remote
// address; the result is treated only as an equality key.
// Time Complexity: O(1) - header lookups
// Space Complexity: O(1) - returns string reference
func ClientIP(r *http.Request) string {
	// X-Forwarded-For carries a comma-separated chain; the first entry
	// is the originating client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
