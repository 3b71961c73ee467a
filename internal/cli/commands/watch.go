package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/workbook"
)

// debounceDelay coalesces editor write bursts into one reload.
const debounceDelay = 250 * time.Millisecond

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the workbook file and re-run on change",
		Long: `Watch the workbook file for edits. Each change reloads the workbook
and re-runs every cell of the current sheet in dependency order.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// Watch the directory: editors often replace the file,
			// which drops a watch on the file itself.
			workbookPath := cmdCtx.Config.Workbook
			if err := watcher.Add(filepath.Dir(workbookPath)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", workbookPath, err)
			}

			cmdCtx.Logger.Info("watching workbook", "path", workbookPath)

			var debounce *time.Timer
			reload := make(chan struct{}, 1)

			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != filepath.Clean(workbookPath) {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
						continue
					}
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(debounceDelay, func() {
						select {
						case reload <- struct{}{}:
						default:
						}
					})

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					cmdCtx.Logger.Warn("watch error", "error", err)

				case <-reload:
					if err := runCurrentSheet(ctx, cmdCtx, cmd); err != nil {
						cmdCtx.Logger.Error("re-run failed", "error", err)
					}
				}
			}
		},
	}
}

func runCurrentSheet(ctx context.Context, cmdCtx *CommandContext, cmd *cobra.Command) error {
	wb, err := workbook.ReadConfigFile(cmdCtx.Config.Workbook)
	if err != nil {
		return err
	}
	if err := cmdCtx.Store.Load(wb); err != nil {
		return err
	}

	sheetID := cmdCtx.Store.CurrentSheetID()
	if sheetID == "" {
		return nil
	}

	cmdCtx.Logger.Info("workbook changed, re-running", "sheet", sheetID)
	err = cmdCtx.Engine.RunAllCells(ctx, sheetID, cellreg.RunOptions{
		CacheResults: cmdCtx.Config.CacheResults,
	})

	if sheet, ok := cmdCtx.Store.Sheet(sheetID); ok {
		printStatusTable(cmd.OutOrStdout(), cmdCtx.Store, sheet.CellIDs)
	}
	if saveErr := cmdCtx.SaveState(ctx); saveErr != nil {
		cmdCtx.Logger.Warn("failed to persist state", "error", saveErr)
	}
	return err
}
