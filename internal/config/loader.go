package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "courier",
			TickInterval: Duration(100 * time.Millisecond),
			LogLevel:     "info",
			LogFormat:    "json",
		},
		Channel: ChannelConfig{
			Path:         "data/bus.db",
			Name:         "main",
			PollInterval: Duration(25 * time.Millisecond),
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
	}
}

// Load reads and parses configuration from a file, applying defaults and
// validating the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDefaults merges default values into config where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.TickInterval == 0 {
		cfg.Service.TickInterval = defaults.Service.TickInterval
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Channel.Path == "" {
		cfg.Channel.Path = defaults.Channel.Path
	}
	if cfg.Channel.Name == "" {
		cfg.Channel.Name = defaults.Channel.Name
	}
	if cfg.Channel.PollInterval == 0 {
		cfg.Channel.PollInterval = defaults.Channel.PollInterval
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

func validate(cfg *Config) error {
	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(cfg.Service.LogFormat)] {
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Channel.Path == "" {
		return fmt.Errorf("channel.path is required")
	}
	if cfg.Channel.Name == "" {
		return fmt.Errorf("channel.name is required")
	}
	if cfg.Channel.PollInterval <= 0 {
		return fmt.Errorf("channel.poll_interval must be positive")
	}

	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api.enabled is true")
	}
	return nil
}
