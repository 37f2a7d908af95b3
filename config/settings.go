package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/hupe1980/llmcouncil/core"
)

// Settings are the user-selected council models, persisted between runs.
type Settings struct {
	CouncilModels []string `toml:"council_models"`
	ChairmanModel string   `toml:"chairman_model"`
}

// SettingsFrom returns the settings implied by the configuration.
func SettingsFrom(c *Config) Settings {
	return Settings{
		CouncilModels: append([]string(nil), c.Council.Models...),
		ChairmanModel: c.Council.ChairmanModel,
	}
}

// LoadSettings reads the settings file at path. A missing file yields
// fallback unchanged.
func LoadSettings(path string, fallback Settings) (Settings, error) {
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("failed to read settings file: %w", err)
	}
	if len(s.CouncilModels) == 0 {
		s.CouncilModels = fallback.CouncilModels
	}
	if s.ChairmanModel == "" {
		s.ChairmanModel = fallback.ChairmanModel
	}
	return s, nil
}

// SaveSettings writes s to path, creating parent directories as needed.
func SaveSettings(path string, s Settings) error {
	models, err := core.NormalizeModels(s.CouncilModels)
	if err != nil {
		return fmt.Errorf("invalid council models: %w", err)
	}
	s.CouncilModels = models

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return f.Close()
}
