// Package config loads studyforge settings from a JSON file and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonathan/studyforge/internal/llm"
)

// Config holds the service configuration. A JSON file supplies defaults and
// environment variables override it.
type Config struct {
	// Storage
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	RedisAddr   string `json:"redis_addr,omitempty"`   // Redis address for cross-process extraction locks

	// Model
	Provider  string `json:"provider,omitempty"`   // "gemini" or "anthropic"
	Model     string `json:"model,omitempty"`      // Provider model name
	APIKey    string `json:"api_key,omitempty"`    // Provider API key
	MaxTokens int    `json:"max_tokens,omitempty"` // Completion budget per model call

	// Retries of transient model failures
	RetryAttempts     int `json:"retry_attempts,omitempty"`
	RetryInitialDelay int `json:"retry_initial_delay_ms,omitempty"`
	RetryMaxDelay     int `json:"retry_max_delay_ms,omitempty"`

	// Service
	Port         int    `json:"port,omitempty"`
	LogMode      string `json:"log_mode,omitempty"`      // "dev" or "prod"
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"` // OTLP/HTTP collector, tracing disabled when empty
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	policy := llm.DefaultRetryPolicy()
	return Config{
		Provider:          string(llm.ProviderGemini),
		MaxTokens:         llm.DefaultMaxTokens,
		RetryAttempts:     int(policy.MaxAttempts),
		RetryInitialDelay: int(policy.InitialDelay / time.Millisecond),
		RetryMaxDelay:     int(policy.MaxDelay / time.Millisecond),
		Port:              8080,
		LogMode:           "prod",
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// envInt reads an integer variable, leaving dst unchanged when it is unset.
func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// FromEnv returns a copy of c overridden by environment variables.
func (c Config) FromEnv() (Config, error) {
	envString("DATABASE_URL", &c.DatabaseURL)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("LLM_PROVIDER", &c.Provider)
	envString("LLM_MODEL", &c.Model)
	envString("LOG_MODE", &c.LogMode)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)

	if c.APIKey == "" {
		switch llm.Provider(c.Provider) {
		case llm.ProviderAnthropic:
			envString("ANTHROPIC_API_KEY", &c.APIKey)
		default:
			envString("GEMINI_API_KEY", &c.APIKey)
		}
	}

	for name, dst := range map[string]*int{
		"LLM_MAX_TOKENS":          &c.MaxTokens,
		"LLM_RETRY_ATTEMPTS":      &c.RetryAttempts,
		"LLM_RETRY_INITIAL_DELAY": &c.RetryInitialDelay,
		"LLM_RETRY_MAX_DELAY":     &c.RetryMaxDelay,
		"PORT":                    &c.Port,
	} {
		if err := envInt(name, dst); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	switch llm.Provider(c.Provider) {
	case llm.ProviderGemini, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("config error: unsupported provider %q", c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("config error: 'max_tokens' must be non-negative")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("config error: 'retry_attempts' must be non-negative")
	}
	if c.RetryInitialDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("config error: retry delays must be non-negative")
	}
	if c.RetryMaxDelay > 0 && c.RetryInitialDelay > c.RetryMaxDelay {
		return fmt.Errorf("config error: 'retry_initial_delay_ms' exceeds 'retry_max_delay_ms'")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.LogMode != "" && c.LogMode != "dev" && c.LogMode != "prod" {
		return fmt.Errorf("config error: 'log_mode' must be dev or prod")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	for _, f := range []struct{ dst, def *string }{
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.RedisAddr, &defaults.RedisAddr},
		{&result.Provider, &defaults.Provider},
		{&result.Model, &defaults.Model},
		{&result.APIKey, &defaults.APIKey},
		{&result.LogMode, &defaults.LogMode},
		{&result.OTLPEndpoint, &defaults.OTLPEndpoint},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	for _, f := range []struct{ dst, def *int }{
		{&result.MaxTokens, &defaults.MaxTokens},
		{&result.RetryAttempts, &defaults.RetryAttempts},
		{&result.RetryInitialDelay, &defaults.RetryInitialDelay},
		{&result.RetryMaxDelay, &defaults.RetryMaxDelay},
		{&result.Port, &defaults.Port},
	} {
		if *f.dst == 0 {
			*f.dst = *f.def
		}
	}

	return result
}

// LLM returns the model configuration. An empty Model uses the provider default.
func (c *Config) LLM() *llm.Config {
	var out *llm.Config
	if llm.Provider(c.Provider) == llm.ProviderAnthropic {
		out = llm.DefaultAnthropicConfig()
	} else {
		out = llm.DefaultGeminiConfig()
	}
	if c.Model != "" {
		out = out.WithModel(c.Model)
	}
	out.Retry = c.RetryPolicy()
	return out
}

// RetryPolicy returns the retry settings as an llm.RetryPolicy.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	if c.RetryAttempts > 0 {
		policy.MaxAttempts = uint(c.RetryAttempts)
	}
	if c.RetryInitialDelay > 0 {
		policy.InitialDelay = time.Duration(c.RetryInitialDelay) * time.Millisecond
	}
	if c.RetryMaxDelay > 0 {
		policy.MaxDelay = time.Duration(c.RetryMaxDelay) * time.Millisecond
	}
	return policy
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
