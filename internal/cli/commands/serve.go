package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cellflow/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API server",
		Long: `Start the headless HTTP API exposing workbook state, cell runs,
cancellation, downstream queries, and result pages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.NewServer(server.Config{
				Engine:       cmdCtx.Engine,
				Host:         cmdCtx.Config.Server.Host,
				Port:         cmdCtx.Config.Server.Port,
				CacheResults: cmdCtx.Config.CacheResults,
				Logger:       cmdCtx.Logger,
			})
			return srv.Serve(ctx)
		},
	}
}
