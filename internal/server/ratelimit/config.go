package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the budget for requests matching Pattern, for example
// "POST /courses/{id}/questions". A zero Limit means unlimited.
type EndpointConfig struct {
	Pattern string
	Limit   int // requests per Window
	Window  time.Duration
	Burst   int // defaults to Limit when 0
}

// LoadConfig reads RATE_LIMIT_* environment variables. Malformed values fall
// back to their defaults.
func LoadConfig() *Config {
	if !env("RATE_LIMIT_ENABLED", true, strconv.ParseBool) {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    env("RATE_LIMIT_DEFAULT_LIMIT", 1000, strconv.Atoi),
		DefaultWindow:   env("RATE_LIMIT_DEFAULT_WINDOW", time.Minute, time.ParseDuration),
		CleanupInterval: env("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute, time.ParseDuration),
		IdleTTL:         env("RATE_LIMIT_IDLE_TTL", time.Hour, time.ParseDuration),
		Allowlist:       clientSet(os.Getenv("RATE_LIMIT_ALLOWLIST")),
		Denylist:        clientSet(os.Getenv("RATE_LIMIT_DENYLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs limits model-backed endpoints hardest. Unlisted
// endpoints use the default limit.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Pattern: "GET /health"},

		{Pattern: "POST /courses/{id}/questions", Limit: 20, Window: time.Hour, Burst: 3},
		{Pattern: "POST /courses/{id}/topics", Limit: 20, Window: time.Hour, Burst: 3},
		{Pattern: "POST /courses/{id}/difficulty", Limit: 20, Window: time.Hour, Burst: 3},
		{Pattern: "POST /assessments/{id}/suggestions", Limit: 20, Window: time.Hour, Burst: 3},
		{Pattern: "POST /assessments/{id}/plan", Limit: 20, Window: time.Hour, Burst: 3},

		{Pattern: "POST /courses", Limit: 100, Window: time.Minute, Burst: 10},
		{Pattern: "POST /assessments", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// clientSet parses a comma-separated list of client ids (remote IPs).
func clientSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = true
		}
	}
	return set
}
