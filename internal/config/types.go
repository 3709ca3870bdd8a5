package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "100ms"
// as well as integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}

	var asString string
	if err := node.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds")
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the complete courier host configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Channel ChannelConfig `yaml:"channel"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string   `yaml:"name"`
	TickInterval Duration `yaml:"tick_interval"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`
}

// ChannelConfig defines the shared channel database settings.
type ChannelConfig struct {
	Path         string   `yaml:"path"`
	Name         string   `yaml:"name"`
	Sender       string   `yaml:"sender,omitempty"` // defaults to host:pid
	PollInterval Duration `yaml:"poll_interval"`
}

// APIConfig defines HTTP status server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}
