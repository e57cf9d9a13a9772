package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rawinstinctart/rawauditpro/internal/bootstrap"
)

func serveCommand() *cobra.Command {
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API with the audit orchestrator and the auto-apply sweeper.
PostgreSQL migrations are applied on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := options()
			opts.InMemory = inMemory
			return bootstrap.Serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use the in-memory store instead of PostgreSQL")
	return cmd
}
