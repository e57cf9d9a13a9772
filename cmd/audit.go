package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rawinstinctart/rawauditpro/internal/bootstrap"
)

func auditCommand() *cobra.Command {
	var ao bootstrap.AuditOptions

	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Audit a site once and print the report",
		Long: `Crawl and analyze a site in memory, generate drafts and print the
report. Nothing is written to the database.`,
		Example: `  rawaudit audit https://example.com --policy safe --auto-apply`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ao.URL = args[0]
			_, err := bootstrap.RunAudit(cmd.Context(), options(), ao, cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVar(&ao.Policy, "policy", "", "risk policy: safe, balanced or aggressive (default from config)")
	cmd.Flags().BoolVar(&ao.AutoFix, "auto-fix", false, "auto-fix low-risk issues after the audit")
	cmd.Flags().BoolVar(&ao.AutoApply, "auto-apply", false, "apply drafts that clear the policy threshold")
	return cmd
}
