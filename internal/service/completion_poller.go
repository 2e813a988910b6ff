package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
)

// WaitOutcome tells the caller why AwaitCompletion returned.
type WaitOutcome string

const (
	// WaitDrained means no PENDING record was left in the run.
	WaitDrained WaitOutcome = "drained"
	// WaitIdleTimeout means neither the batch nor any record of the run changed
	// within the idle window while records were still PENDING.
	WaitIdleTimeout WaitOutcome = "idle_timeout"
)

// CompletionPoller blocks until a run drains or stops making progress.
type CompletionPoller struct {
	records  repository.RecordRepository
	batches  repository.BatchRepository
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewCompletionPoller builds a poller that re-checks every interval. A zero
// interval polls back to back, which tests rely on.
func NewCompletionPoller(
	records repository.RecordRepository,
	batches repository.BatchRepository,
	interval time.Duration,
	logger *zap.Logger,
) (*CompletionPoller, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if interval < 0 {
		return nil, fmt.Errorf("poll interval must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CompletionPoller{
		records:  records,
		batches:  batches,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepWithContext,
	}, nil
}

func (p *CompletionPoller) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// AwaitCompletion returns WaitDrained once (batchID, runNumber) has no PENDING
// record, or WaitIdleTimeout once the newest record and batch update are older
// than idleTimeout. A run without any record yet never times out. Cancelling
// ctx returns an error wrapping domain.ErrWaitInterrupted.
func (p *CompletionPoller) AwaitCompletion(
	ctx context.Context,
	batchID, runNumber int64,
	idleTimeout time.Duration,
) (WaitOutcome, error) {
	if idleTimeout <= 0 {
		return "", fmt.Errorf("%w: idle timeout must be positive", domain.ErrValidation)
	}

	started := p.now()
	polls := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", p.interrupted(err, batchID, runNumber, started)
		}

		polls++
		outcome, done, err := p.check(ctx, batchID, runNumber, idleTimeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", p.interrupted(ctxErr, batchID, runNumber, started)
			}
			return "", err
		}
		if done {
			elapsed := p.now().Sub(started)
			p.metrics.ObserveCompletionWait(string(outcome), elapsed)
			p.logger.Info("completion wait finished",
				append(observability.RunFields(batchID, runNumber),
					zap.String("outcome", string(outcome)),
					zap.Int("polls", polls),
					zap.Duration("elapsed", elapsed),
				)...,
			)
			return outcome, nil
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return "", p.interrupted(err, batchID, runNumber, started)
		}
	}
}

func (p *CompletionPoller) check(
	ctx context.Context,
	batchID, runNumber int64,
	idleTimeout time.Duration,
) (WaitOutcome, bool, error) {
	latest, err := p.records.ListByBatchAndRunOrderedByUpdateDesc(ctx, batchID, runNumber, 1)
	if err != nil {
		return "", false, fmt.Errorf("failed to load latest record of batch %d run %d: %w", batchID, runNumber, err)
	}

	idle := false
	if len(latest) > 0 {
		batch, err := p.batches.GetByID(ctx, batchID)
		if err != nil {
			return "", false, fmt.Errorf("failed to load batch %d: %w", batchID, err)
		}

		lastActivity := latest[0].UpdatedAt
		if batch.UpdatedAt.After(lastActivity) {
			lastActivity = batch.UpdatedAt
		}
		idle = p.now().Sub(lastActivity) > idleTimeout
	}

	pending, err := p.records.CountByBatchRunStatus(ctx, batchID, runNumber, domain.RecordStatusPending)
	if err != nil {
		return "", false, fmt.Errorf("failed to count pending records of batch %d run %d: %w", batchID, runNumber, err)
	}

	switch {
	case pending == 0:
		return WaitDrained, true, nil
	case idle:
		return WaitIdleTimeout, true, nil
	}

	p.logger.Debug("run still pending",
		append(observability.RunFields(batchID, runNumber), zap.Int64("pendingCount", pending))...,
	)
	return "", false, nil
}

func (p *CompletionPoller) interrupted(cause error, batchID, runNumber int64, started time.Time) error {
	p.metrics.ObserveCompletionWait("interrupted", p.now().Sub(started))
	return fmt.Errorf("%w: batch %d run %d: %w", domain.ErrWaitInterrupted, batchID, runNumber, cause)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
