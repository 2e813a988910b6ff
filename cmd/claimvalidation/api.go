package main

import (
	"github.com/kursadbilgin/claim-validation/internal/handler"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"github.com/kursadbilgin/claim-validation/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func cmdAPI() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "serve the batch HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), "api")
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			stores := a.stores()
			tx := repository.NewGormTransactor(a.db)

			advancer, err := service.NewRunAdvancer(tx, a.logger)
			if err != nil {
				return err
			}
			advancer.SetMetrics(a.metrics)

			batches, err := service.NewBatchService(stores.Batches, stores.Records, stores.Responses, advancer, a.logger)
			if err != nil {
				return err
			}
			loader, err := service.NewBatchLoader(stores.Batches, tx, a.logger)
			if err != nil {
				return err
			}

			f := a.newFiber()
			if err := handler.RegisterBatchRoutes(f, batches, loader); err != nil {
				return err
			}

			a.logger.Info("claim-validation api started", zap.Int("port", a.cfg.APIPort))
			return a.serve(cmd.Context(), f)
		},
	}
}
