package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"tareas/api/internal/config"
	"tareas/api/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "tareasctl",
		Short:        "Administrative tasks for the Tareas API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(pruneNotificationsCmd())
	rootCmd.AddCommand(importTasksCmd())
	rootCmd.AddCommand(reindexCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDatabase loads the configuration and connects to Postgres. The caller
// closes the returned handle.
func openDatabase(ctx context.Context) (config.Config, *sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	database, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, database, nil
}
