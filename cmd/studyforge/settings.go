package main

import (
	"fmt"

	"github.com/jonathan/studyforge/internal/config"
)

// loadSettings layers defaults, the optional config file and the environment,
// then validates the result.
func loadSettings(path string) (config.Config, error) {
	cfg := config.Defaults()
	if path != "" {
		fileCfg, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg.MergeWithDefaults(cfg)
	}

	cfg, err := cfg.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
