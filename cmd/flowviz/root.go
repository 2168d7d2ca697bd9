package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

// rootCmd is the root Cobra command that gets called from the main func.
func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "flowviz",
		Short:        "flowviz runs a staged backpressure pipeline and serves its live telemetry.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "path to config.yaml (defaults and FLOWVIZ_* variables only when empty)")

	cmd.AddCommand(
		runCmd(),
		configCmd(),
		migrateCmd(),
	)

	return cmd
}

// configPath resolves --config, falling back to ./config.yaml when it exists.
func configPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	if fileExists(defaultConfigPath) {
		return defaultConfigPath, nil
	}
	return "", nil
}
