package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "workbook.yaml", cfg.Workbook)
	assert.Equal(t, "cellflow.db", cfg.StatePath)
	assert.Equal(t, "duckdb", cfg.Database.Type)
	assert.Equal(t, 8790, cfg.Server.Port)
	assert.True(t, cfg.CacheResults)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cellflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workbook: analytics.yaml
database:
  type: postgres
  host: db.internal
server:
  port: 9000
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "analytics.yaml", cfg.Workbook)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Unset keys keep their defaults.
	assert.Equal(t, "cellflow.db", cfg.StatePath)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CELLFLOW_STATE_PATH", "/tmp/flow.db")
	t.Setenv("CELLFLOW_DATABASE__TYPE", "postgres")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/flow.db", cfg.StatePath)
	assert.Equal(t, "postgres", cfg.Database.Type)
}

func TestFlagOverridesEverything(t *testing.T) {
	t.Setenv("CELLFLOW_WORKBOOK", "from-env.yaml")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("workbook", "", "")
	flags.String("state", "", "")
	require.NoError(t, flags.Parse([]string{"--workbook=from-flag.yaml", "--state=flag.db"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag.yaml", cfg.Workbook)
	assert.Equal(t, "flag.db", cfg.StatePath)
}

func TestUnchangedFlagsIgnored(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("workbook", "flag-default.yaml", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	// The flag was never set, so the config default wins.
	assert.Equal(t, "workbook.yaml", cfg.Workbook)
}
