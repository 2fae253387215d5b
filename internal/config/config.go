package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgallion1/altgest/internal/tagcontext"
)

type Config struct {
	Port string

	// Auth
	AltgestAPIKey string

	// Claude generation
	AnthropicAPIKey string
	AnthropicModel  string

	// Worker pool
	WorkerCount           int
	MaxQueueSize          int
	MaxConcurrentGenerate int

	// Scanning limits
	MaxInputBytes int
	ScanTimeout   time.Duration

	// Context extraction and grouping
	ContextBudget       int
	GroupThreshold      int
	ContextCacheEnabled bool

	// Job state
	JobTTL time.Duration

	LogLevel string
}

const (
	defaultWorkerCount           = 4
	defaultMaxQueueSize          = 100
	defaultMaxConcurrentGenerate = 5
	defaultMaxInputBytes         = 2 << 20 // 2MB
	defaultScanTimeout           = 2 * time.Second
	defaultContextBudget         = 1500
	defaultGroupThreshold        = 500
	defaultJobTTL                = 1 * time.Hour
)

// Load reads configuration from the environment. Unset or unparseable
// numeric values fall back to their defaults. Durations need a unit
// ("750ms", "10m").
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", "8091")
	v.SetDefault("altgest_api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("worker_count", defaultWorkerCount)
	v.SetDefault("max_queue_size", defaultMaxQueueSize)
	v.SetDefault("max_concurrent_generate", defaultMaxConcurrentGenerate)
	v.SetDefault("max_input_bytes", defaultMaxInputBytes)
	v.SetDefault("scan_timeout", defaultScanTimeout.String())
	v.SetDefault("context_budget", defaultContextBudget)
	v.SetDefault("group_threshold", defaultGroupThreshold)
	v.SetDefault("context_cache_enabled", true)
	v.SetDefault("job_ttl", defaultJobTTL.String())
	v.SetDefault("log_level", "info")

	cfg := Config{
		Port: v.GetString("port"),

		AltgestAPIKey: v.GetString("altgest_api_key"),

		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		AnthropicModel:  v.GetString("anthropic_model"),

		WorkerCount:           v.GetInt("worker_count"),
		MaxQueueSize:          v.GetInt("max_queue_size"),
		MaxConcurrentGenerate: v.GetInt("max_concurrent_generate"),

		MaxInputBytes: v.GetInt("max_input_bytes"),
		ScanTimeout:   duration(v, "scan_timeout", defaultScanTimeout),

		ContextBudget:       v.GetInt("context_budget"),
		GroupThreshold:      v.GetInt("group_threshold"),
		ContextCacheEnabled: v.GetBool("context_cache_enabled"),

		JobTTL: duration(v, "job_ttl", defaultJobTTL),

		LogLevel: strings.ToLower(v.GetString("log_level")),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	if cfg.MaxConcurrentGenerate <= 0 {
		cfg.MaxConcurrentGenerate = defaultMaxConcurrentGenerate
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = defaultMaxInputBytes
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = defaultContextBudget
	}
	// A zero threshold is meaningful: only touching tags share context.
	if cfg.GroupThreshold < 0 {
		cfg.GroupThreshold = defaultGroupThreshold
	}
	cfg.ContextBudget = min(cfg.ContextBudget, tagcontext.MaxBudget)
	cfg.GroupThreshold = min(cfg.GroupThreshold, tagcontext.MaxBudget)

	return cfg
}

// duration parses key with time.ParseDuration. Values without a unit
// ("2"), unparseable values and non-positive durations yield def.
func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c Config) Validate() error {
	if c.AltgestAPIKey == "" {
		return fmt.Errorf("ALTGEST_API_KEY is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
