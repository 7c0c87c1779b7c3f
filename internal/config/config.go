// Package config loads the optional harness config from config.toml.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the harness-wide configuration. Every field has a working
// default; a missing config file is not an error.
type Config struct {
	Push  PushConfig  `toml:"push"`
	Doc   DocConfig   `toml:"doc"`
	Agent AgentConfig `toml:"agent"`
}

// PushConfig controls where finish pushes run branches.
type PushConfig struct {
	Remote string `toml:"remote"`
}

// DocConfig controls doc-drift behavior.
type DocConfig struct {
	// Strict makes finish fail on unresolved drift even without --doc-strict.
	Strict bool `toml:"strict"`
}

// AgentConfig selects the agent launch profile used by run.
type AgentConfig struct {
	Profile string `toml:"profile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Push:  PushConfig{Remote: "origin"},
		Agent: AgentConfig{Profile: "default"},
	}
}

// Load reads config.toml at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Push.Remote == "" {
		cfg.Push.Remote = "origin"
	}
	if cfg.Agent.Profile == "" {
		cfg.Agent.Profile = "default"
	}
	return cfg, nil
}
