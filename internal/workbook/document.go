package workbook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadConfigFile loads a persisted workspace configuration from a YAML
// document.
func ReadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read workbook file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse workbook file %s: %w", path, err)
	}
	if cfg.Data == nil {
		cfg.Data = make(map[string]Cell)
	}
	if cfg.Sheets == nil {
		cfg.Sheets = make(map[string]*Sheet)
	}
	return cfg, nil
}

// WriteConfigFile persists a workspace configuration as YAML.
func WriteConfigFile(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write workbook file: %w", err)
	}
	return nil
}
