package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AgentsPilot/neuronforge-sub017/internal/handlers"
	"github.com/AgentsPilot/neuronforge-sub017/internal/provider"
)

// Config holds all stepengine configuration.
// Priority: flags > env vars > settings.yaml > defaults.
type Config struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	DefaultModel string `yaml:"default_model"`

	Anthropic AnthropicConfig        `yaml:"anthropic"`
	OpenAI    OpenAIConfig           `yaml:"openai"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Breaker   provider.BreakerConfig `yaml:"breaker"`
	Retry     provider.RetryPolicy   `yaml:"retry"`
	Prices    provider.PriceTable    `yaml:"prices"`

	// Policies overrides the per-intent temperature and token defaults.
	Policies map[string]handlers.PolicyOverride `yaml:"policies"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
}

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// RateLimitConfig bounds the throughput of each backend in tokens per
// minute.
type RateLimitConfig struct {
	TokensPerMinute    float64 `yaml:"tokens_per_minute"`
	MaxTokensPerMinute float64 `yaml:"max_tokens_per_minute"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "text",
		DefaultModel: "claude-sonnet-4-5",
		Anthropic:    AnthropicConfig{MaxTokens: 4096},
		OpenAI:       OpenAIConfig{DefaultModel: "gpt-4o-mini", MaxTokens: 4096},
		RateLimit: RateLimitConfig{
			TokensPerMinute:    40000,
			MaxTokensPerMinute: 80000,
		},
		Breaker: provider.DefaultBreakerConfig(),
		Retry:   provider.DefaultRetryPolicy(),
	}
}

func stepengineDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepengine"
	}
	return filepath.Join(home, ".stepengine")
}

// settingsPath resolves the settings file. The second result reports
// whether the path was chosen explicitly, in which case it must exist.
func settingsPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if v := os.Getenv("STEPENGINE_CONFIG"); v != "" {
		return v, true
	}
	return filepath.Join(stepengineDir(), "settings.yaml"), false
}

func loadConfig(flagPath string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.yaml (the default location may be absent).
	path, explicit := settingsPath(flagPath)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse settings %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read settings: %w", err)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STEPENGINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STEPENGINE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("STEPENGINE_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("STEPENGINE_RATE_LIMIT_TPM"); v != "" {
		tpm, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("STEPENGINE_RATE_LIMIT_TPM: %w", err)
		}
		cfg.RateLimit.TokensPerMinute = tpm
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if c.RateLimit.TokensPerMinute <= 0 {
		return fmt.Errorf("rate_limit.tokens_per_minute must be positive")
	}
	if c.Breaker.FailureThreshold < 0 || c.Breaker.Cooldown < 0 || c.Breaker.HalfOpenMax < 0 {
		return fmt.Errorf("breaker settings must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	switch c.Retry.Backoff {
	case provider.BackoffConstant, provider.BackoffLinear, provider.BackoffExponential:
	default:
		return fmt.Errorf("retry.backoff must be constant, linear or exponential, got %q", c.Retry.Backoff)
	}
	return nil
}

// policies applies the configured overrides to the default table.
func (c Config) policies() (handlers.PolicyTable, error) {
	return handlers.DefaultPolicies().WithOverrides(c.Policies)
}
