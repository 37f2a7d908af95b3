// Package config loads the council configuration from TOML or YAML files and
// persists user-selected model settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/logging"
)

// Config represents the application configuration
type Config struct {
	Council   CouncilConfig  `toml:"council" yaml:"council"`
	OpenAI    ProviderConfig `toml:"openai" yaml:"openai"`
	Anthropic ProviderConfig `toml:"anthropic" yaml:"anthropic"`
	Storage   StorageConfig  `toml:"storage" yaml:"storage"`
	Server    ServerConfig   `toml:"server" yaml:"server"`
	Log       LogConfig      `toml:"log" yaml:"log"`
}

// CouncilConfig holds the model selection and query settings
type CouncilConfig struct {
	Models        []string `toml:"models" yaml:"models"`
	ChairmanModel string   `toml:"chairman_model" yaml:"chairman_model"`
	Timeout       Duration `toml:"timeout" yaml:"timeout"`
	Mock          bool     `toml:"mock" yaml:"mock"` // serve every model from the offline mock backend
	SettingsFile  string   `toml:"settings_file" yaml:"settings_file"`
}

// ProviderConfig holds the settings of one hosted model provider
type ProviderConfig struct {
	APIKey      string   `toml:"api_key" yaml:"api_key"`
	APIKeyEnv   string   `toml:"api_key_env" yaml:"api_key_env"` // environment variable holding the key
	BaseURL     string   `toml:"base_url" yaml:"base_url"`
	Prefixes    []string `toml:"prefixes" yaml:"prefixes"`
	MaxTokens   int64    `toml:"max_tokens" yaml:"max_tokens"`
	Temperature *float64 `toml:"temperature" yaml:"temperature"`
	MaxRetries  int      `toml:"max_retries" yaml:"max_retries"`
}

// StorageConfig holds the conversation database settings
type StorageConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// ServerConfig holds the websocket server settings
type ServerConfig struct {
	Addr           string   `toml:"addr" yaml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig holds the logger settings
type LogConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Format    string `toml:"format" yaml:"format"` // "json" or "text"
	AddSource bool   `toml:"add_source" yaml:"add_source"`
}

// Duration is a time.Duration decoded from strings such as "90s" or "2m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. Unknown keys are
// rejected in both formats.
func Load(path string) (*Config, error) {
	var config Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		metadata, err := toml.DecodeFile(path, &config)
		if err != nil {
			return nil, fmt.Errorf("failed to read/parse config file: %w", err)
		}

		// Fail on unknown keys
		if len(metadata.Undecoded()) > 0 {
			return nil, fmt.Errorf("unknown keys in config file: %v", metadata.Undecoded())
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if len(c.Council.Models) == 0 {
		c.Council.Models = []string{"gpt-5", "claude-sonnet-4.5", "claude-sonnet-4", "claude-haiku-4.5"}
	}
	if c.Council.ChairmanModel == "" {
		c.Council.ChairmanModel = "gpt-5"
	}
	if c.Council.Timeout.Duration == 0 {
		c.Council.Timeout.Duration = core.DefaultTimeout
	}
	if c.Council.SettingsFile == "" {
		c.Council.SettingsFile = "data/settings.toml"
	}
	if c.OpenAI.APIKeyEnv == "" {
		c.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if len(c.OpenAI.Prefixes) == 0 {
		c.OpenAI.Prefixes = []string{"gpt-", "o1", "o3", "o4"}
	}
	if c.Anthropic.APIKeyEnv == "" {
		c.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if len(c.Anthropic.Prefixes) == 0 {
		c.Anthropic.Prefixes = []string{"claude-"}
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/council.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8001"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := core.NormalizeModels(c.Council.Models); err != nil {
		return fmt.Errorf("invalid council.models: %w", err)
	}
	if c.Council.Timeout.Duration < 0 {
		return fmt.Errorf("invalid council.timeout: %s (must be positive)", c.Council.Timeout)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log.format: %s (must be 'json' or 'text')", c.Log.Format)
	}
	return nil
}

// Key resolves the provider API key, preferring the explicit value over the
// environment variable.
func (p ProviderConfig) Key() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() *logging.CouncilLogger {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return logging.NewSlogLogger(level, c.Log.Format, c.Log.AddSource)
}
