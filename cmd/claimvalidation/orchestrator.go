package main

import (
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"github.com/kursadbilgin/claim-validation/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func cmdOrchestrator() *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrator",
		Short: "drive pending batches run by run until complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), "orchestrator")
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			stores := a.stores()
			publisher, err := a.publisher()
			if err != nil {
				return err
			}

			poller, err := service.NewCompletionPoller(stores.Records, stores.Batches, a.cfg.Durations.PollInterval, a.logger)
			if err != nil {
				return err
			}
			poller.SetMetrics(a.metrics)

			advancer, err := service.NewRunAdvancer(repository.NewGormTransactor(a.db), a.logger)
			if err != nil {
				return err
			}
			advancer.SetMetrics(a.metrics)

			orchestrator, err := service.NewOrchestrator(
				stores.Batches,
				stores.Records,
				publisher,
				poller,
				advancer,
				service.OrchestratorConfig{
					Interval:       a.cfg.Durations.OrchestratorInterval,
					BatchLimit:     a.cfg.OrchestratorBatchLimit,
					Concurrency:    a.cfg.OrchestratorConcurrency,
					IdleTimeout:    a.cfg.Durations.IdleTimeout,
					MaxStalledRuns: a.cfg.MaxStalledRuns,
					Queue:          a.cfg.QueueName(),
				},
				a.logger,
			)
			if err != nil {
				return err
			}
			orchestrator.SetMetrics(a.metrics)

			a.logger.Info("claim-validation orchestrator started",
				zap.Duration("idleTimeout", a.cfg.Durations.IdleTimeout),
				zap.Int("maxStalledRuns", a.cfg.MaxStalledRuns),
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return orchestrator.Start(ctx) })
			g.Go(func() error { return a.serve(ctx, a.newFiber()) })
			return g.Wait()
		},
	}
}
