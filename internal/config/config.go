// Package config loads CellFlow configuration by layering defaults, an
// optional cellflow.yaml file, CELLFLOW_-prefixed environment
// variables, and explicitly set CLI flags, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/cellflow/pkg/adapter"
)

// Config file names, checked in order.
const (
	ConfigFileName    = "cellflow.yaml"
	ConfigFileNameAlt = "cellflow.yml"
)

// EnvPrefix is the prefix for environment variable overrides
// (CELLFLOW_STATE_PATH, CELLFLOW_DATABASE__TYPE, ...).
const EnvPrefix = "CELLFLOW_"

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Config holds all CellFlow configuration options.
type Config struct {
	// Workbook is the path to the workbook YAML document.
	Workbook string `koanf:"workbook"`

	// StatePath is the SQLite file persisting workspace state.
	StatePath string `koanf:"state_path"`

	// CacheResults fetches a first result page after each run.
	CacheResults bool `koanf:"cache_results"`

	LogLevel string `koanf:"log_level"`
	Verbose  bool   `koanf:"verbose"`

	Database adapter.Config `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
}

// Load builds the effective configuration. configPath explicitly names
// a config file; empty falls back to cellflow.yaml / cellflow.yml in
// the working directory. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"workbook":      "workbook.yaml",
		"state_path":    "cellflow.db",
		"cache_results": true,
		"log_level":     "info",
		"database.type": "duckdb",
		"server.host":   "127.0.0.1",
		"server.port":   8790,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(configPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("config file %s not found", configPath)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// findConfigFile resolves the config file to use.
// Priority: explicit path > cellflow.yaml > cellflow.yml.
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}
