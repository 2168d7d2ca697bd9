package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowviz/flowviz/internal/config"
	"github.com/flowviz/flowviz/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations and exit",
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
			logger := config.InitLogger(cfg.Logging)

			if cfg.Database.Host == "" || cfg.Database.DBName == "" {
				return fmt.Errorf("database host and dbname must be configured")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := database.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.RunMigrations(pool); err != nil {
				return err
			}
			logger.Info("Migrations applied", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
			return nil
		},
	}
}
