// Package config loads engine configuration from built-in defaults, an
// optional YAML file, and DIAGENT_* environment variables, in ascending
// priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BackendConfig selects and parameterizes one LLM backend.
type BackendConfig struct {
	// Provider is "openai", "anthropic", or "local".
	Provider string `mapstructure:"provider"`

	// Model is the provider's model name.
	Model string `mapstructure:"model"`

	// APIKey overrides the provider's ambient key env var.
	APIKey string `mapstructure:"api_key"`

	// BaseURL points OpenAI-compatible clients at a non-default endpoint
	// (local servers, proxies). Empty means the provider default.
	BaseURL string `mapstructure:"base_url"`
}

// Configured reports whether this backend slot is filled in.
func (b BackendConfig) Configured() bool {
	return b.Provider != "" && b.Model != ""
}

// Config is the full engine configuration.
type Config struct {
	// Primary is the active backend. Fallback, when configured, serves
	// requests after the primary exhausts its retries.
	Primary  BackendConfig `mapstructure:"primary"`
	Fallback BackendConfig `mapstructure:"fallback"`

	Orchestrator struct {
		MaxToolRounds   int     `mapstructure:"max_tool_rounds"`
		Temperature     float64 `mapstructure:"temperature"`
		MaxContextChars int     `mapstructure:"max_context_chars"`
	} `mapstructure:"orchestrator"`

	Guardrails struct {
		Strict    bool   `mapstructure:"strict"`
		MinLength int    `mapstructure:"min_length"`
		MaxLength int    `mapstructure:"max_length"`
		RulesFile string `mapstructure:"rules_file"`
	} `mapstructure:"guardrails"`

	Reasoning struct {
		MaxSessions          int           `mapstructure:"max_sessions"`
		MaxEntriesPerSession int           `mapstructure:"max_entries_per_session"`
		TTL                  time.Duration `mapstructure:"ttl"`
		MaxReasoningChars    int           `mapstructure:"max_reasoning_chars"`
	} `mapstructure:"reasoning"`

	Retry struct {
		MaxAttempts int           `mapstructure:"max_attempts"`
		BaseDelay   time.Duration `mapstructure:"base_delay"`
		MaxDelay    time.Duration `mapstructure:"max_delay"`
		Jitter      float64       `mapstructure:"jitter"`
	} `mapstructure:"retry"`

	Router struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"router"`

	Logging struct {
		// Level is "debug", "info", "warn", or "error".
		Level string `mapstructure:"level"`

		// Format is "json" or "console".
		Format string `mapstructure:"format"`

		// File enables rotated file output when set. Empty logs to stderr.
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"logging"`
}

// Load reads configuration. path names an optional YAML file; a missing
// file is not an error, only an unreadable one. Environment variables use
// the DIAGENT_ prefix with underscores for nesting, e.g.
// DIAGENT_PRIMARY_PROVIDER or DIAGENT_GUARDRAILS_STRICT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DIAGENT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("primary.provider", "openai")
	v.SetDefault("primary.model", "gpt-4o-mini")

	v.SetDefault("orchestrator.max_tool_rounds", 5)
	v.SetDefault("orchestrator.temperature", 0.2)
	v.SetDefault("orchestrator.max_context_chars", 2000)

	v.SetDefault("guardrails.strict", false)
	v.SetDefault("guardrails.min_length", 2)
	v.SetDefault("guardrails.max_length", 10000)

	v.SetDefault("reasoning.max_sessions", 100)
	v.SetDefault("reasoning.max_entries_per_session", 5)
	v.SetDefault("reasoning.ttl", 30*time.Minute)
	v.SetDefault("reasoning.max_reasoning_chars", 2000)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 10*time.Second)
	v.SetDefault("retry.jitter", 0.2)

	v.SetDefault("router.timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate checks cross-field consistency. Zero-value bounds slip through
// viper when a user explicitly sets them; reject those here rather than at
// first use.
func (c *Config) Validate() error {
	var problems []string

	switch c.Primary.Provider {
	case "openai", "anthropic", "local":
	default:
		problems = append(problems, fmt.Sprintf("primary.provider: unknown provider %q", c.Primary.Provider))
	}
	if c.Fallback.Provider != "" {
		switch c.Fallback.Provider {
		case "openai", "anthropic", "local":
		default:
			problems = append(problems, fmt.Sprintf("fallback.provider: unknown provider %q", c.Fallback.Provider))
		}
	}
	if c.Orchestrator.MaxToolRounds < 1 {
		problems = append(problems, "orchestrator.max_tool_rounds: must be at least 1")
	}
	if c.Guardrails.MinLength < 1 {
		problems = append(problems, "guardrails.min_length: must be at least 1")
	}
	if c.Guardrails.MaxLength <= c.Guardrails.MinLength {
		problems = append(problems, "guardrails.max_length: must exceed min_length")
	}
	if c.Reasoning.MaxSessions < 1 {
		problems = append(problems, "reasoning.max_sessions: must be at least 1")
	}
	if c.Reasoning.MaxEntriesPerSession < 1 {
		problems = append(problems, "reasoning.max_entries_per_session: must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts: must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
