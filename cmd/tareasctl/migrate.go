package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tareas/api/db"
	"tareas/api/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := store.ApplyMigrations(ctx, database, db.Migrations(cfg.MigrationsDir)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			states, err := store.MigrationStatus(ctx, database, db.Migrations(cfg.MigrationsDir))
			if err != nil {
				return err
			}
			for _, state := range states {
				mark := "pending"
				if state.Applied {
					mark = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", mark, state.Version)
			}
			return nil
		},
	})
	return cmd
}
