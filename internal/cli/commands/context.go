// Package commands implements the cellflow subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/config"
	"github.com/leapstack-labs/cellflow/internal/engine"
	"github.com/leapstack-labs/cellflow/internal/results"
	"github.com/leapstack-labs/cellflow/internal/state"
	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/adapter"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"

	_ "github.com/leapstack-labs/cellflow/pkg/adapters/duckdb"   // register duckdb adapter
	_ "github.com/leapstack-labs/cellflow/pkg/adapters/postgres" // register postgres adapter
)

type configKey struct{}
type loggerKey struct{}

// WithConfig stores the loaded configuration in a command context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores the logger in a command context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// ConfigFromContext returns the configuration stored by the root
// command.
func ConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return nil
}

// LoggerFromContext returns the logger stored by the root command.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext bundles the wired application for one command
// invocation.
type CommandContext struct {
	Config *config.Config
	Logger *slog.Logger
	DB     adapter.Adapter
	Store  *workbook.Store
	Engine *engine.Engine
	State  *state.SQLiteStore
}

// NewCommandContext connects the database, opens the state store, and
// loads the workbook. The returned cleanup must be called when the
// command finishes.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	ctx := cmd.Context()
	cfg := ConfigFromContext(ctx)
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration not loaded")
	}
	logger := LoggerFromContext(ctx)

	db, err := adapter.NewAdapter(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Connect(ctx, cfg.Database); err != nil {
		return nil, nil, err
	}

	stateStore := state.NewSQLiteStore(logger)
	if err := stateStore.Open(cfg.StatePath); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = stateStore.Close()
		_ = db.Close()
	}

	parser := sqlparse.NewDuckDBParser(db, logger)
	registry := cellreg.NewDefault()
	store := workbook.New(registry, logger)
	eng := engine.New(store, registry, db, parser, results.NewCache(), logger)

	cmdCtx := &CommandContext{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Store:  store,
		Engine: eng,
		State:  stateStore,
	}

	if err := cmdCtx.loadWorkbook(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return cmdCtx, cleanup, nil
}

// loadWorkbook prefers the workbook file; a saved state snapshot is the
// fallback when no file exists yet.
func (c *CommandContext) loadWorkbook(ctx context.Context) error {
	if _, err := os.Stat(c.Config.Workbook); err == nil {
		wb, err := workbook.ReadConfigFile(c.Config.Workbook)
		if err != nil {
			return err
		}
		return c.Store.Load(wb)
	}

	wb, found, err := c.State.LoadWorkbook(ctx)
	if err != nil {
		return err
	}
	if found {
		return c.Store.Load(wb)
	}
	return nil
}

// SaveState persists the current workbook shape and cell statuses.
func (c *CommandContext) SaveState(ctx context.Context) error {
	cfg := c.Store.Config()
	if err := c.State.SaveWorkbook(ctx, cfg); err != nil {
		return err
	}
	for id := range cfg.Data {
		status, ok := c.Store.Status(id)
		if !ok {
			continue
		}
		if err := c.State.SaveStatus(ctx, id, status); err != nil {
			return err
		}
	}
	return nil
}

// resolveSheet maps a sheet argument (id or title) to a sheet id,
// defaulting to the current sheet.
func (c *CommandContext) resolveSheet(arg string) (string, error) {
	if arg == "" {
		if id := c.Store.CurrentSheetID(); id != "" {
			return id, nil
		}
		return "", fmt.Errorf("no current sheet; specify a sheet id or title")
	}
	if _, ok := c.Store.Sheet(arg); ok {
		return arg, nil
	}
	for _, id := range c.Store.SheetOrder() {
		sheet, ok := c.Store.Sheet(id)
		if ok && sheet.Title == arg {
			return id, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found", arg)
}
