package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSheetsCommand creates the sheets command.
func NewSheetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sheets",
		Short: "List the workbook's sheets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			current := cmdCtx.Store.CurrentSheetID()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "TITLE", "TYPE", "SCHEMA", "CELLS", "CURRENT"})

			for _, id := range cmdCtx.Store.SheetOrder() {
				sheet, ok := cmdCtx.Store.Sheet(id)
				if !ok {
					continue
				}
				marker := ""
				if id == current {
					marker = "*"
				}
				t.AppendRow(table.Row{sheet.ID, sheet.Title, sheet.Type, sheet.SchemaName, len(sheet.CellIDs), marker})
			}
			t.Render()
			return nil
		},
	}
}
