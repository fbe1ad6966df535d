package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tareas/api/internal/search"
)

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every task into the Meilisearch index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return errors.New("MEILI_URL is not set")
			}
			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
			defer meili.Close()

			n, err := search.NewService(meili, search.NewPgFTS(database.DB)).Reindex(ctx)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d tasks\n", n)
			return nil
		},
	}
}
