package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WillKirkmanM/playground/internal/config"
)

func newTestLimiter(perMinute int) *RateLimiter {
	// Global guard disabled so per-client behavior is isolated
	return NewRateLimiter(config.RateLimitConfig{
		MaxRequestsPerMinute: perMinute,
		GlobalQPS:            0,
	}, nil)
}

// TestBurstUpToCapacity verifies a new client may burst the full bucket
// and is then rejected
func TestBurstUpToCapacity(t *testing.T) {
	rl := newTestLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("Expected request %d to be admitted", i+1)
		}
	}
	if rl.Allow("client-a") {
		t.Error("Expected rejection after capacity exhausted")
	}
}

// TestClientIsolation verifies one client's consumption never affects
// another client's bucket
func TestClientIsolation(t *testing.T) {
	rl := newTestLimiter(2)
	defer rl.Stop()

	rl.Allow("client-a")
	rl.Allow("client-a")
	if rl.Allow("client-a") {
		t.Error("Expected client-a exhausted")
	}

	if !rl.Allow("client-b") {
		t.Error("Expected client-b unaffected by client-a")
	}
}

// TestRefillOverTime verifies tokens accumulate at capacity/60 per
// second, admitting again after enough elapsed time
func TestRefillOverTime(t *testing.T) {
	rl := newTestLimiter(60) // one token per second
	defer rl.Stop()

	for i := 0; i < 60; i++ {
		rl.Allow("client-a")
	}
	if rl.Allow("client-a") {
		t.Fatal("Expected bucket drained")
	}

	// Backdate the refill instant instead of sleeping
	rl.mu.Lock()
	rl.buckets["client-a"].lastRefill = time.Now().Add(-2 * time.Second)
	rl.mu.Unlock()

	if !rl.Allow("client-a") {
		t.Error("Expected admission after refill period")
	}
}

// TestRefillCapped verifies a long idle period never grows the bucket
// past capacity
func TestRefillCapped(t *testing.T) {
	rl := newTestLimiter(2)
	defer rl.Stop()

	rl.Allow("client-a")
	rl.mu.Lock()
	rl.buckets["client-a"].lastRefill = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	admitted := 0
	for i := 0; i < 5; i++ {
		if rl.Allow("client-a") {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("Expected exactly capacity admissions after idle, got %d", admitted)
	}
}

// TestGlobalGuard verifies the service-wide bucket rejects ahead of the
// per-client buckets
func TestGlobalGuard(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		MaxRequestsPerMinute: 100,
		GlobalQPS:            1,
		GlobalBurst:          2,
	}, nil)
	defer rl.Stop()

	admitted := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("client-a") {
			admitted++
		}
	}
	if admitted > 3 {
		t.Errorf("Expected global guard to cap admissions, got %d", admitted)
	}
}

// TestClientIPPriority verifies proxy headers win over the remote
// address in priority order
func TestClientIPPriority(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/execute", nil)
	r.RemoteAddr = "10.0.0.1:4444"

	if got := ClientIP(r); got != "10.0.0.1:4444" {
		t.Errorf("Expected remote address fallback, got %q", got)
	}

	r.Header.Set("X-Real-IP", "203.0.113.9")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("Expected X-Real-IP, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	if got := ClientIP(r); got != "198.51.100.7" {
		t.Errorf("Expected first X-Forwarded-For entry, got %q", got)
	}
}

// TestIdleBucketSweep verifies quiet clients are eventually reclaimed
// so the bucket map stays bounded
func TestIdleBucketSweep(t *testing.T) {
	rl := newTestLimiter(5)
	defer rl.Stop()

	rl.Allow("client-a")
	rl.mu.Lock()
	rl.buckets["client-a"].lastRefill = time.Now().Add(-2 * bucketIdleTimeout)
	// Run one sweep iteration inline rather than waiting for the ticker
	now := time.Now()
	for id, bucket := range rl.buckets {
		if now.Sub(bucket.lastRefill) > bucketIdleTimeout {
			delete(rl.buckets, id)
		}
	}
	remaining := len(rl.buckets)
	rl.mu.Unlock()

	if remaining != 0 {
		t.Errorf("Expected idle bucket reclaimed, %d remain", remaining)
	}
}

// BenchmarkAllowConcurrent measures admission throughput under
// concurrent load from distinct clients
func BenchmarkAllowConcurrent(b *testing.B) {
	rl := newTestLimiter(1000000)
	defer rl.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			rl.Allow("bench-client")
		}
	})
}
