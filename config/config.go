// Package config loads the platform configuration from a YAML file with
// sensible defaults, so a bare `kokorod serve` works with the in-memory
// stores and the mock model.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// ModelConfig selects the LLM provider. Provider "mock" needs no key.
type ModelConfig struct {
	Provider string `yaml:"provider"` // mock, openai, anthropic
	Name     string `yaml:"name"`
	APIKey   string `yaml:"api_key"`
}

// MemoryConfig selects the memory service. An empty base URL means the
// in-process store.
type MemoryConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StateConfig points at the health-signal engines. Empty URLs disable a read.
type StateConfig struct {
	PhysicalURL string `yaml:"physical_url"`
	MindURL     string `yaml:"mind_url"`
}

// DispatchConfig points at the scheduling and notification services.
type DispatchConfig struct {
	SchedulerURL string `yaml:"scheduler_url"`
	NotifierURL  string `yaml:"notifier_url"`
}

// StoreConfig selects persistence. An empty path means in-memory stores.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// BusConfig tunes the event broker.
type BusConfig struct {
	RingSize         int `yaml:"ring_size"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// SafetyConfig tunes the safety command queue.
type SafetyConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// EvolutionConfig tunes the playbook evolution cycle.
type EvolutionConfig struct {
	WindowHours       int `yaml:"window_hours"`
	MinIntervalHours  int `yaml:"min_interval_hours"`
	SweepIntervalMins int `yaml:"sweep_interval_minutes"`
}

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Memory    MemoryConfig    `yaml:"memory"`
	State     StateConfig     `yaml:"state"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Store     StoreConfig     `yaml:"store"`
	Bus       BusConfig       `yaml:"bus"`
	Safety    SafetyConfig    `yaml:"safety"`
	Evolution EvolutionConfig `yaml:"evolution"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Model:  ModelConfig{Provider: "mock"},
		Bus:    BusConfig{RingSize: 100, SubscriberBuffer: 16},
		Safety: SafetyConfig{QueueCapacity: 5},
		Evolution: EvolutionConfig{
			WindowHours:       168,
			MinIntervalHours:  24,
			SweepIntervalMins: 60,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults untouched. API keys fall back to the conventional environment
// variables so they never need to live in the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "mock", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}
