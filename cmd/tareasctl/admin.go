package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tareas/api/internal/authpw"
	"tareas/api/internal/notify"
	"tareas/api/internal/rbac"
	"tareas/api/internal/store"
)

func createAdminCmd() *cobra.Command {
	var (
		email    string
		name     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the first admin account",
		Long: `Create an admin account. There is no self sign-up, so the first
admin has to be provisioned from the command line.

Examples:
  tareasctl create-admin --email jefa@municipio.gob --name "Ana Ruiz" --password '...'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			auth := authpw.NewService(store.NewPostgresStore(database))
			user, err := auth.CreateUser(ctx, authpw.CreateUserRequest{
				Email:       email,
				Password:    password,
				DisplayName: name,
				Role:        string(rbac.RoleAdmin),
			})
			if errors.Is(err, authpw.ErrEmailTaken) {
				return fmt.Errorf("an account for %s already exists", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "initial password (min 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func pruneNotificationsCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune-notifications",
		Short: "Delete notifications older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			retention := cfg.NotificationRetention
			if olderThan > 0 {
				retention = olderThan
			}
			dispatcher := notify.NewDispatcher(store.NewPostgresStore(database), notify.Options{Retention: retention})
			n, err := dispatcher.Prune(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d notifications older than %s\n", n, retention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override the configured retention, e.g. 720h")
	return cmd
}
