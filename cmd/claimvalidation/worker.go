package main

import (
	"fmt"

	"github.com/kursadbilgin/claim-validation/internal/repository"
	"github.com/kursadbilgin/claim-validation/internal/service"
	"github.com/kursadbilgin/claim-validation/internal/validator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func cmdWorker() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "consume pending records and call the validator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), "worker")
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if a.cfg.ValidatorURL == "" {
				return fmt.Errorf("VALIDATOR_URL is required for the worker")
			}
			v, err := validator.NewHTTPValidator(a.cfg.ValidatorURL, a.cfg.Durations.ValidatorTimeout)
			if err != nil {
				return err
			}

			consumer, err := a.consumer()
			if err != nil {
				return err
			}
			limiter, err := a.rateLimiter()
			if err != nil {
				return err
			}

			finalizer, err := service.NewResponseFinalizer(repository.NewGormTransactor(a.db), a.logger)
			if err != nil {
				return err
			}
			finalizer.SetMetrics(a.metrics)

			worker, err := service.NewWorkerService(
				a.stores().Records,
				finalizer,
				consumer,
				v,
				limiter,
				a.cfg.QueueName(),
				a.cfg.WorkerConcurrency,
				a.logger,
			)
			if err != nil {
				return err
			}
			worker.SetMetrics(a.metrics)

			a.logger.Info("claim-validation worker started",
				zap.String("backend", string(a.cfg.Backend)),
				zap.Int("concurrency", a.cfg.WorkerConcurrency),
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return worker.Start(ctx) })
			g.Go(func() error { return a.serve(ctx, a.newFiber()) })
			return g.Wait()
		},
	}
}
