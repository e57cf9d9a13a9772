package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rawinstinctart/rawauditpro/internal/bootstrap"
)

func reportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <audit-id>",
		Short: "Print the report of a stored audit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.PrintReport(cmd.Context(), options(), args[0], cmd.OutOrStdout())
		},
	}
}
