package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults verifies baseline configuration values
// Ensures the service starts with the documented defaults when no
// environment or file overrides are present
func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.RateLimit.MaxRequestsPerMinute != 30 {
		t.Errorf("Expected 30 requests per minute, got %d", cfg.RateLimit.MaxRequestsPerMinute)
	}
	if cfg.Execution.Timeout != 10*time.Second {
		t.Errorf("Expected 10s execution timeout, got %s", cfg.Execution.Timeout)
	}
	if cfg.Cache.MaxSize != 100 || cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("Unexpected cache defaults: size=%d ttl=%s", cfg.Cache.MaxSize, cfg.Cache.TTL)
	}
	if len(cfg.Safety.BlacklistedImports) != len(DefaultBlacklist) {
		t.Errorf("Expected built-in blacklist, got %v", cfg.Safety.BlacklistedImports)
	}
}

// TestEnvOverrides verifies environment variables take effect with typing
// Each variable class (int, bool, seconds, minutes, list) is exercised
func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("EXECUTION_TIMEOUT_SECONDS", "5")
	t.Setenv("CACHE_TTL_MINUTES", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BLACKLISTED_IMPORTS", "os/signal")

	cfg := FromEnv()

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Server.DebugMode {
		t.Error("Expected debug mode enabled")
	}
	if cfg.Execution.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %s", cfg.Execution.Timeout)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Expected 10m TTL, got %s", cfg.Cache.TTL)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins: %v", cfg.Server.AllowedOrigins)
	}

	// Extra blacklist entries are appended to the built-in set
	found := false
	for _, imp := range cfg.Safety.BlacklistedImports {
		if imp == "os/signal" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected os/signal appended to blacklist, got %v", cfg.Safety.BlacklistedImports)
	}
}

// TestClampingProducesWarnings verifies below-floor values are raised
// to safe minimums and each adjustment is recorded as a warning
func TestClampingProducesWarnings(t *testing.T) {
	t.Setenv("MAX_REQUESTS_PER_MINUTE", "0")
	t.Setenv("MAX_CODE_LENGTH", "10")
	t.Setenv("EXECUTION_TIMEOUT_SECONDS", "0")

	cfg := FromEnv()

	if cfg.RateLimit.MaxRequestsPerMinute != 1 {
		t.Errorf("Expected clamp to 1, got %d", cfg.RateLimit.MaxRequestsPerMinute)
	}
	if cfg.Execution.MaxCodeLength != 100 {
		t.Errorf("Expected clamp to 100, got %d", cfg.Execution.MaxCodeLength)
	}
	if cfg.Execution.Timeout != time.Second {
		t.Errorf("Expected clamp to 1s, got %s", cfg.Execution.Timeout)
	}
	if len(cfg.Warnings) < 3 {
		t.Errorf("Expected at least 3 warnings, got %v", cfg.Warnings)
	}
}

// TestInvalidValuesKeepDefaults verifies malformed variables are ignored
// rather than aborting startup
func TestInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("DEBUG_MODE", "maybe")

	cfg := FromEnv()

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port for malformed value, got %d", cfg.Server.Port)
	}
	if cfg.Server.DebugMode {
		t.Error("Expected debug mode to stay disabled for malformed value")
	}
}

// TestTempDirFallback verifies an unusable TEMP_DIR falls back to the OS
// temporary directory with a warning
func TestTempDirFallback(t *testing.T) {
	// A path under a regular file cannot be created
	f := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEMP_DIR", filepath.Join(f, "nested"))

	cfg := FromEnv()

	if cfg.Execution.TempDir != os.TempDir() {
		t.Errorf("Expected fallback to %s, got %s", os.TempDir(), cfg.Execution.TempDir)
	}
}

// TestYAMLOverlay verifies file values override defaults and environment
// variables still win over the file
func TestYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playground.yaml")
	body := "server:\n  port: 7000\ncache:\n  maxSize: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_CACHE_SIZE", "7")

	cfg := DefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		t.Fatal(err)
	}
	applyEnv(cfg)
	cfg.validate()

	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port 7000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Cache.MaxSize != 7 {
		t.Errorf("Expected environment to win over file, got %d", cfg.Cache.MaxSize)
	}
}
