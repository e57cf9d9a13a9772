// Package cmd implements the rawaudit command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rawinstinctart/rawauditpro/internal/bootstrap"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const envPrefix = "RAWAUDIT"

var rootCmd = &cobra.Command{
	Use:   "rawaudit",
	Short: "SEO audits with reviewable fix drafts",
	Long: `rawaudit crawls a website, scores its SEO health and proposes fixes as
drafts that are applied manually or automatically within a risk policy.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./config.yaml when present)")
	flags.Bool("debug", false, "enable debug mode")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")

	for _, name := range []string{"config", "debug", "log-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: bind flag %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("rawaudit %s\n", Version)
		},
	})
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(auditCommand())
	rootCmd.AddCommand(reportCommand())
	rootCmd.AddCommand(migrateCommand())
}

// initConfig lets RAWAUDIT_CONFIG, RAWAUDIT_DEBUG and RAWAUDIT_LOG_LEVEL
// stand in for the global flags.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if viper.GetString("config") == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			viper.Set("config", "config.yaml")
		}
	}
}

// options collects the global flags for bootstrap.
func options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: viper.GetString("config"),
		Debug:      viper.GetBool("debug"),
		LogLevel:   viper.GetString("log-level"),
	}
}
