package main

import (
	"github.com/spf13/cobra"

	"github.com/jiin/botwatch/internal/config"
)

// NewRootCmd creates the root botwatch command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "botwatch",
		Short:         "botwatch - metrics and alerting for the sales chat bot",
		Long:          "botwatch samples host and bot traffic metrics, raises threshold alerts and keeps a rolling snapshot history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (defaults and BOTWATCH_* env only when empty)")

	root.AddCommand(
		newServeCmd(),
		newHistoryCmd(),
		newReportCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// loadConfig reads the config named by --config
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath(cmd))
}
