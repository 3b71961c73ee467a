package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/workbook"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		cellID  string
		cascade bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "run [sheet]",
		Short: "Run cells and materialize their result views",
		Long: `Run every cell in a sheet in dependency order, or a single cell
with --cell. With --cascade, cells downstream of the target are re-run
after it succeeds.`,
		Example: `  # Run every cell in the current sheet
  cellflow run

  # Run a specific sheet by title
  cellflow run "Revenue Analysis"

  # Run one cell and everything downstream of it
  cellflow run --cell cell-42 --cascade`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			opts := cellreg.RunOptions{
				Cascade:      cascade,
				CacheResults: cmdCtx.Config.CacheResults && !noCache,
			}

			start := time.Now()
			var runErr error
			var reportIDs []string

			if cellID != "" {
				runErr = cmdCtx.Engine.RunCell(ctx, cellID, opts)
				sheetID, ok := cmdCtx.Store.SheetOf(cellID)
				if ok {
					reportIDs = append([]string{cellID}, cmdCtx.Engine.GetDownstream(sheetID, cellID)...)
				} else {
					reportIDs = []string{cellID}
				}
			} else {
				sheetArg := ""
				if len(args) > 0 {
					sheetArg = args[0]
				}
				sheetID, err := cmdCtx.resolveSheet(sheetArg)
				if err != nil {
					return err
				}
				opts.Cascade = false
				runErr = cmdCtx.Engine.RunAllCells(ctx, sheetID, opts)
				if sheet, ok := cmdCtx.Store.Sheet(sheetID); ok {
					reportIDs = sheet.CellIDs
				}
			}

			printStatusTable(cmd.OutOrStdout(), cmdCtx.Store, reportIDs)
			fmt.Fprintf(cmd.OutOrStdout(), "Completed in %s\n", time.Since(start).Round(time.Millisecond))

			if err := cmdCtx.SaveState(ctx); err != nil {
				cmdCtx.Logger.Warn("failed to persist state", "error", err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&cellID, "cell", "", "Run a single cell by id")
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Re-run downstream cells after --cell succeeds")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip fetching result pages into the cache")
	return cmd
}

// printStatusTable renders the run status of the given cells.
func printStatusTable(w io.Writer, store *workbook.Store, cellIDs []string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"CELL", "TYPE", "STATUS", "RESULT VIEW", "ERROR"})

	for _, id := range cellIDs {
		status, ok := store.Status(id)
		if !ok {
			continue
		}
		t.AppendRow(table.Row{id, status.Type, status.Status, status.ResultView, status.LastError})
	}
	t.Render()
}
