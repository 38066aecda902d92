package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentsPilot/neuronforge-sub017/pkg/schema"
)

// isolateEnv points HOME at a fresh directory and clears every variable
// loadConfig reads.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"STEPENGINE_CONFIG",
		"STEPENGINE_LOG_LEVEL",
		"STEPENGINE_LOG_FORMAT",
		"STEPENGINE_DEFAULT_MODEL",
		"STEPENGINE_RATE_LIMIT_TPM",
		"ANTHROPIC_API_KEY",
		"OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeSettings(t *testing.T, home, body string) string {
	t.Helper()
	dir := filepath.Join(home, ".stepengine")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Empty(t, cfg.Anthropic.APIKey)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolateEnv(t)
	writeSettings(t, home, `
log_format: json
default_model: claude-haiku-4
rate_limit:
  tokens_per_minute: 1000
breaker:
  cooldown: 10s
retry:
  max_attempts: 5
  delay: 250ms
prices:
  claude-haiku-4:
    input_per_mtok: 0.8
    output_per_mtok: 4
policies:
  generate:
    temperature: 0.9
`)

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "claude-haiku-4", cfg.DefaultModel)
	assert.Equal(t, 1000.0, cfg.RateLimit.TokensPerMinute)
	assert.Equal(t, 80000.0, cfg.RateLimit.MaxTokensPerMinute)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, "exponential", cfg.Retry.Backoff)
	assert.Equal(t, 4.0, cfg.Prices["claude-haiku-4"].OutputPerMTok)

	policies, err := cfg.policies()
	require.NoError(t, err)
	assert.Equal(t, 0.9, policies.For(schema.IntentGenerate).Temperature)
	assert.Equal(t, 0.2, policies.For(schema.IntentExtract).Temperature)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	home := isolateEnv(t)
	writeSettings(t, home, "log_level: warn\ndefault_model: from-file\n")

	t.Setenv("STEPENGINE_LOG_LEVEL", "debug")
	t.Setenv("STEPENGINE_DEFAULT_MODEL", "from-env")
	t.Setenv("STEPENGINE_RATE_LIMIT_TPM", "2500")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.DefaultModel)
	assert.Equal(t, 2500.0, cfg.RateLimit.TokensPerMinute)
	assert.Equal(t, "sk-test", cfg.Anthropic.APIKey)
	assert.Equal(t, "sk-openai", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.DefaultModel)
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_format: json\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)

	t.Setenv("STEPENGINE_CONFIG", path)
	cfg, err = loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		env      map[string]string
		path     string
	}{
		{name: "explicit file missing", path: "does-not-exist.yaml"},
		{name: "malformed yaml", settings: "log_level: [unterminated\n"},
		{name: "bad log format", settings: "log_format: xml\n"},
		{name: "bad rate", env: map[string]string{"STEPENGINE_RATE_LIMIT_TPM": "fast"}},
		{name: "zero rate", settings: "rate_limit:\n  tokens_per_minute: 0\n"},
		{name: "negative breaker", settings: "breaker:\n  failure_threshold: -1\n"},
		{name: "no attempts", settings: "retry:\n  max_attempts: 0\n"},
		{name: "unknown backoff", settings: "retry:\n  backoff: random\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := isolateEnv(t)
			if tt.settings != "" {
				writeSettings(t, home, tt.settings)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := tt.path
			if path != "" {
				path = filepath.Join(home, path)
			}
			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestConfig_PoliciesRejectUnknownIntent(t *testing.T) {
	home := isolateEnv(t)
	writeSettings(t, home, "policies:\n  translate:\n    temperature: 0.1\n")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	_, err = cfg.policies()
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}
