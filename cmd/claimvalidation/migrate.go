package main

import (
	"fmt"

	"github.com/kursadbilgin/claim-validation/internal/config"
	"github.com/kursadbilgin/claim-validation/internal/infra/postgresql"
	"github.com/kursadbilgin/claim-validation/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/spf13/cobra"
)

func cmdMigrate() *cobra.Command {
	var rollback bool
	var cmd = &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger("migrate", cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			db, err := postgresql.NewPostgres(cmd.Context(), cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
			if err != nil {
				return fmt.Errorf("postgres initialization failed: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("postgres underlying db init failed: %w", err)
			}
			defer sqlDB.Close()

			if rollback {
				if err := migrations.RollbackLast(db); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				logger.Info("last migration rolled back")
				return nil
			}

			if err := migrations.Migrate(db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			logger.Info("database migrated")
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the most recent migration instead")
	return cmd
}
