package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowviz/flowviz/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect flowviz configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "Print a commented example configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return config.DumpExampleConfig(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration after defaults and environment overrides",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configPath(cmd)
				if err != nil {
					return err
				}
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				// never echo secrets
				cfg.Auth.JWTSecret = redact(cfg.Auth.JWTSecret)
				cfg.Auth.AdminPassword = redact(cfg.Auth.AdminPassword)
				cfg.Database.Password = redact(cfg.Database.Password)

				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("failed to encode config: %w", err)
				}
				return enc.Close()
			},
		},
	)

	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
