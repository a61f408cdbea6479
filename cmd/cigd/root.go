package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	dsn        string
	driver     string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:          "cigd",
		Short:        "Common interest group assignment engine",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "cigd.yaml", "YAML config file")
	cmd.PersistentFlags().StringVar(&flags.dsn, "db", "", "database DSN or SQLite path (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "database driver: sqlite3, sqlite or postgres (overrides config)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "development logging at debug level")

	cmd.AddCommand(
		serveCmd(&flags),
		seedCmd(&flags),
		rolloverCmd(&flags),
	)
	return cmd
}
