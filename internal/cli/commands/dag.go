package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	var cellID string

	cmd := &cobra.Command{
		Use:   "dag [sheet]",
		Short: "Show a sheet's cell dependency graph",
		Long: `Display the dependency graph of a sheet's cells. With --cell, show
the cells downstream of one cell in the order a cascade would run them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sheetArg := ""
			if len(args) > 0 {
				sheetArg = args[0]
			}
			sheetID, err := cmdCtx.resolveSheet(sheetArg)
			if err != nil {
				return err
			}

			if cellID != "" {
				downstream := cmdCtx.Engine.GetDownstream(sheetID, cellID)
				if len(downstream) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No cells downstream of %s\n", cellID)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(downstream, " -> "))
				return nil
			}

			sheet, ok := cmdCtx.Store.Sheet(sheetID)
			if !ok {
				return fmt.Errorf("sheet %q not found", sheetID)
			}
			g := cmdCtx.Engine.BuildDependencyGraph(sheetID)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"CELL", "DEPENDS ON"})

			for _, id := range sheet.CellIDs {
				deps := g.Dependencies[id]
				t.AppendRow(table.Row{id, strings.Join(deps, ", ")})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&cellID, "cell", "", "Show the downstream run order of one cell")
	return cmd
}
