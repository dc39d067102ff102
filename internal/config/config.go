package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	instance *Config
	once     sync.Once
)

// Config represents the complete playground server configuration
// Aggregates all component configurations for centralized management
// Values are resolved in three layers: defaults, optional YAML file, environment
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Safety    SafetyConfig    `yaml:"safety" json:"safety"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`

	// Warnings collects non-fatal findings from validation (clamped values,
	// missing runner binary). Surfaced by the caller, never fatal here.
	Warnings []string `yaml:"-" json:"-"`
}

// ServerConfig defines HTTP server configuration parameters
// Controls listen address, static asset serving and CORS behavior
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host" default:"0.0.0.0"`
	Port           int           `yaml:"port" json:"port" default:"8080"`
	StaticFilesDir string        `yaml:"staticFilesDir" json:"staticFilesDir" default:"/app/build"`
	AllowedOrigins []string      `yaml:"allowedOrigins" json:"allowedOrigins"`
	DebugMode      bool          `yaml:"debugMode" json:"debugMode" default:"false"`
	ReadTimeout    time.Duration `yaml:"readTimeout" json:"readTimeout" default:"30s"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" json:"idleTimeout" default:"60s"`
}

// ExecutionConfig defines subprocess execution limits
// Bounds code size, output volume and wall-clock time of submitted programs
type ExecutionConfig struct {
	GoBinary        string        `yaml:"goBinary" json:"goBinary" default:"/usr/local/go/bin/go"`
	TempDir         string        `yaml:"tempDir" json:"tempDir"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" default:"10s"`
	MaxCodeLength   int           `yaml:"maxCodeLength" json:"maxCodeLength" default:"10000"`
	MaxOutputLength int           `yaml:"maxOutputLength" json:"maxOutputLength" default:"10000"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" json:"cleanupInterval" default:"60m"`
}

// RateLimitConfig defines admission control configuration
// Per-client buckets hold the long-run mean at MaxRequestsPerMinute;
// the global bucket shields the whole service from aggregate bursts
type RateLimitConfig struct {
	MaxRequestsPerMinute int     `yaml:"maxRequestsPerMinute" json:"maxRequestsPerMinute" default:"30"`
	GlobalQPS            float64 `yaml:"globalQPS" json:"globalQPS" default:"50"`
	GlobalBurst          int     `yaml:"globalBurst" json:"globalBurst" default:"100"`
}

// CacheConfig defines result cache configuration
// MaxSize of zero disables caching entirely
type CacheConfig struct {
	MaxSize int           `yaml:"maxSize" json:"maxSize" default:"100"`
	TTL     time.Duration `yaml:"ttl" json:"ttl" default:"30m"`
}

// SafetyConfig defines the static import denylist
// Extra entries from the environment are appended to the built-in set
type SafetyConfig struct {
	BlacklistedImports []string `yaml:"blacklistedImports" json:"blacklistedImports"`
}

// LoggingConfig defines structured logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" default:"info"`
	Format string `yaml:"format" json:"format" default:"json"`
}

// TracingConfig defines OpenTelemetry tracing configuration
// Controls distributed tracing and observability
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled" default:"false"`
	ServiceName    string  `yaml:"serviceName" json:"serviceName" default:"playground"`
	ServiceVersion string  `yaml:"serviceVersion" json:"serviceVersion" default:"1.0.0"`
	Environment    string  `yaml:"environment" json:"environment" default:"development"`
	JaegerEndpoint string  `yaml:"jaegerEndpoint" json:"jaegerEndpoint"`
	OTLPEndpoint   string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRatio  float64 `yaml:"samplingRatio" json:"samplingRatio" default:"0.1"`
}

// DefaultBlacklist is the built-in forbidden-import set: process spawning,
// direct syscalls, unsafe memory, raw network, raw HTTP, dynamic plugins.
var DefaultBlacklist = []string{
	"os/exec",
	"syscall",
	"unsafe",
	"net",
	"net/http",
	"plugin",
}

// DefaultConfig returns configuration with sensible defaults
// Provides baseline configuration for development and testing
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			StaticFilesDir: "/app/build",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    30 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Execution: ExecutionConfig{
			GoBinary:        "/usr/local/go/bin/go",
			TempDir:         os.TempDir(),
			Timeout:         10 * time.Second,
			MaxCodeLength:   10000,
			MaxOutputLength: 10000,
			CleanupInterval: 60 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxRequestsPerMinute: 30,
			GlobalQPS:            50,
			GlobalBurst:          100,
		},
		Cache: CacheConfig{
			MaxSize: 100,
			TTL:     30 * time.Minute,
		},
		Safety: SafetyConfig{
			BlacklistedImports: append([]string{}, DefaultBlacklist...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "playground",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			SamplingRatio:  0.1,
		},
	}
}

// GetInstance returns the singleton config instance
// Uses sync.Once to ensure thread-safe lazy initialisation
// Time Complexity: O(1) - returns cached instance after first call
// Space Complexity: O(1) - stores single configuration instance
func GetInstance() *Config {
	once.Do(func() {
		instance = FromEnv()
	})
	return instance
}

// LoadConfig loads configuration from an optional file plus the environment
// and installs it as the singleton. Once the singleton is initialised (by an
// earlier LoadConfig or GetInstance call) later calls leave it unchanged.
// The file is a YAML overlay over the defaults; environment variables
// always win over the file.
func LoadConfig(path string) error {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return err
		}
	}
	applyEnv(cfg)
	cfg.validate()

	once.Do(func() {
		instance = cfg
	})
	return nil
}

// FromEnv builds configuration from defaults plus environment overrides
// Used directly by tests and by GetInstance when no file is given
func FromEnv() *Config {
	cfg := DefaultConfig()
	applyEnv(cfg)
	cfg.validate()
	return cfg
}

// loadFromFile reads a YAML overlay into cfg
// Absent keys keep their defaults
// Time Complexity: O(n) where n is config file size
// Space Complexity: O(n) for parsing configuration
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv overrides cfg fields from the process environment
// Each variable is typed: integer, boolean, seconds, minutes or comma list
func applyEnv(cfg *Config) {
	cfg.Server.Host = envString("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.StaticFilesDir = envString("STATIC_FILES_DIR", cfg.Server.StaticFilesDir)
	cfg.Server.AllowedOrigins = envList("ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.DebugMode = envBool("DEBUG_MODE", cfg.Server.DebugMode)

	cfg.Execution.GoBinary = envString("GO_EXECUTABLE_PATH", cfg.Execution.GoBinary)
	cfg.Execution.TempDir = envString("TEMP_DIR", cfg.Execution.TempDir)
	cfg.Execution.Timeout = envSeconds("EXECUTION_TIMEOUT_SECONDS", cfg.Execution.Timeout)
	cfg.Execution.MaxCodeLength = envInt("MAX_CODE_LENGTH", cfg.Execution.MaxCodeLength)
	cfg.Execution.MaxOutputLength = envInt("MAX_OUTPUT_LENGTH", cfg.Execution.MaxOutputLength)
	cfg.Execution.CleanupInterval = envMinutes("CLEANUP_INTERVAL_MINUTES", cfg.Execution.CleanupInterval)

	cfg.RateLimit.MaxRequestsPerMinute = envInt("MAX_REQUESTS_PER_MINUTE", cfg.RateLimit.MaxRequestsPerMinute)
	cfg.RateLimit.GlobalQPS = envFloat("GLOBAL_RATE_QPS", cfg.RateLimit.GlobalQPS)
	cfg.RateLimit.GlobalBurst = envInt("GLOBAL_RATE_BURST", cfg.RateLimit.GlobalBurst)

	cfg.Cache.MaxSize = envInt("MAX_CACHE_SIZE", cfg.Cache.MaxSize)
	cfg.Cache.TTL = envMinutes("CACHE_TTL_MINUTES", cfg.Cache.TTL)

	// Extra forbidden imports are appended, never replace the built-in set
	if extra := envList("BLACKLISTED_IMPORTS", nil); len(extra) > 0 {
		cfg.Safety.BlacklistedImports = append(cfg.Safety.BlacklistedImports, extra...)
	}

	cfg.Logging.Level = envString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envString("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = envBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.JaegerEndpoint = envString("JAEGER_ENDPOINT", cfg.Tracing.JaegerEndpoint)
	cfg.Tracing.OTLPEndpoint = envString("OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SamplingRatio = envFloat("TRACE_SAMPLING_RATIO", cfg.Tracing.SamplingRatio)
}

// validate clamps out-of-range values to safe floors and records a warning
// for each adjustment. Invalid input never aborts startup.
func (c *Config) validate() {
	if c.RateLimit.MaxRequestsPerMinute < 1 {
		c.warnf("MAX_REQUESTS_PER_MINUTE below minimum, clamped to 1")
		c.RateLimit.MaxRequestsPerMinute = 1
	}
	if c.Execution.MaxCodeLength < 100 {
		c.warnf("MAX_CODE_LENGTH below minimum, clamped to 100")
		c.Execution.MaxCodeLength = 100
	}
	if c.Execution.MaxOutputLength < 1 {
		c.warnf("MAX_OUTPUT_LENGTH below minimum, clamped to 1")
		c.Execution.MaxOutputLength = 1
	}
	if c.Execution.Timeout < time.Second {
		c.warnf("EXECUTION_TIMEOUT_SECONDS below minimum, clamped to 1s")
		c.Execution.Timeout = time.Second
	}
	if c.Cache.MaxSize < 0 {
		c.warnf("MAX_CACHE_SIZE negative, caching disabled")
		c.Cache.MaxSize = 0
	}
	if c.Cache.TTL < time.Minute {
		c.warnf("CACHE_TTL_MINUTES below minimum, clamped to 1m")
		c.Cache.TTL = time.Minute
	}
	if c.Execution.CleanupInterval < time.Minute {
		c.warnf("CLEANUP_INTERVAL_MINUTES below minimum, clamped to 1m")
		c.Execution.CleanupInterval = time.Minute
	}

	// TempDir must exist or be creatable; fall back to the OS default
	if c.Execution.TempDir == "" {
		c.Execution.TempDir = os.TempDir()
	} else if err := os.MkdirAll(c.Execution.TempDir, 0o755); err != nil {
		c.warnf("TEMP_DIR %q not usable (%v), falling back to %s", c.Execution.TempDir, err, os.TempDir())
		c.Execution.TempDir = os.TempDir()
	}

	// Probe the runner binary; a missing binary is reported, not fatal,
	// so the server can still serve static assets and health checks
	if _, err := os.Stat(c.Execution.GoBinary); err != nil {
		c.warnf("Go binary not found at %s: %v", c.Execution.GoBinary, err)
	}
}

func (c *Config) warnf(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// ListenAddr returns the host:port pair the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func envMinutes(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Minute
}

// envList splits a comma-separated variable into trimmed entries
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
