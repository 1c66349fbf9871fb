package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/rickgao/marketsync/internal/database"
	"github.com/rickgao/marketsync/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != "postgres" {
		return errors.New("migrate requires store.backend postgres")
	}

	pool, err := database.Connect(ctx, cfg.Database, cfg.Instance.ID)
	if err != nil {
		return err
	}
	st := postgres.New(pool)
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema applied", "database", cfg.Database.Name)
	return nil
}
