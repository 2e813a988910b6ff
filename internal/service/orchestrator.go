package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/queue"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOrchestratorInterval    = 5 * time.Second
	defaultOrchestratorBatchLimit  = 10
	defaultOrchestratorConcurrency = 4
	defaultIdleTimeout             = 5 * time.Minute
	releaseTimeout                 = 5 * time.Second
)

// RunWaiter is the part of CompletionPoller the orchestrator depends on.
type RunWaiter interface {
	AwaitCompletion(ctx context.Context, batchID, runNumber int64, idleTimeout time.Duration) (WaitOutcome, error)
}

type OrchestratorConfig struct {
	Interval    time.Duration
	BatchLimit  int
	Concurrency int
	IdleTimeout time.Duration
	// MaxStalledRuns flips a batch to ERROR after that many consecutive runs
	// with no completed record. Zero retries forever.
	MaxStalledRuns int
	Queue          string
}

// Orchestrator claims PENDING batches and drives each one run by run until it
// is COMPLETE. A batch is only ever driven by one goroutine at a time.
type Orchestrator struct {
	batches   repository.BatchRepository
	records   repository.RecordRepository
	publisher queue.Publisher
	waiter    RunWaiter
	runs      RunCompleter
	cfg       OrchestratorConfig
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	inFlight map[int64]struct{}
	group    *errgroup.Group
}

func NewOrchestrator(
	batches repository.BatchRepository,
	records repository.RecordRepository,
	publisher queue.Publisher,
	waiter RunWaiter,
	runs RunCompleter,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if batches == nil || records == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if waiter == nil || runs == nil {
		return nil, fmt.Errorf("run waiter and run completer are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultOrchestratorInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultOrchestratorBatchLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultOrchestratorConcurrency
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxStalledRuns < 0 {
		cfg.MaxStalledRuns = 0
	}
	if cfg.Queue == "" {
		cfg.Queue = queue.DefaultRecordQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	group := new(errgroup.Group)
	group.SetLimit(cfg.Concurrency)

	return &Orchestrator{
		batches:   batches,
		records:   records,
		publisher: publisher,
		waiter:    waiter,
		runs:      runs,
		cfg:       cfg,
		logger:    logger,
		inFlight:  make(map[int64]struct{}),
		group:     group,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Start recovers batches left PROCESSING by a previous process, then scans for
// PENDING batches every interval until ctx is cancelled. It returns once every
// batch goroutine has stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() { _ = o.group.Wait() }()

	if err := o.recover(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("orchestrator recovery failed", zap.Error(err))
	}

	if err := o.scan(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("orchestrator initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				o.logger.Error("orchestrator scan failed", zap.Error(err))
			}
		}
	}
}

// recover assumes a single orchestrator process owns PROCESSING batches.
func (o *Orchestrator) recover(ctx context.Context) error {
	stuck, err := o.batches.ListByStatus(ctx, domain.BatchStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing batches: %w", err)
	}

	for _, batch := range stuck {
		ok, err := o.batches.TransitionStatus(ctx, batch.ID, domain.BatchStatusProcessing, domain.BatchStatusPending)
		if err != nil {
			return fmt.Errorf("failed to release batch %d: %w", batch.ID, err)
		}
		if ok {
			o.logger.Info("released batch left processing",
				observability.RunFields(batch.ID, batch.RunNumber)...,
			)
		}
	}
	return nil
}

func (o *Orchestrator) scan(ctx context.Context) error {
	pending, err := o.batches.ListByStatusOrderedByCreateAsc(ctx, domain.BatchStatusPending, o.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch pending batches: %w", err)
	}

	for i := range pending {
		batch := pending[i]
		if !o.markInFlight(batch.ID) {
			continue
		}

		started := o.group.TryGo(func() error {
			defer o.clearInFlight(batch.ID)
			o.driveBatch(ctx, batch)
			return nil
		})
		if !started {
			o.clearInFlight(batch.ID)
			break
		}
	}

	return nil
}

func (o *Orchestrator) markInFlight(batchID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.inFlight[batchID]; ok {
		return false
	}
	o.inFlight[batchID] = struct{}{}
	return true
}

func (o *Orchestrator) clearInFlight(batchID int64) {
	o.mu.Lock()
	delete(o.inFlight, batchID)
	o.mu.Unlock()
}

// driveBatch runs publish, wait and complete cycles until the batch is
// COMPLETE, is flipped to ERROR or ctx ends.
func (o *Orchestrator) driveBatch(ctx context.Context, batch domain.Batch) {
	ctx = observability.WithCorrelationID(ctx, uuid.NewString())
	logger := observability.WithContextLogger(o.logger, ctx).With(zap.Int64("batchId", batch.ID))

	claimed, err := o.batches.TransitionStatus(ctx, batch.ID, domain.BatchStatusPending, domain.BatchStatusProcessing)
	if err != nil {
		logger.Error("failed to claim batch", zap.Error(err))
		return
	}
	if !claimed {
		logger.Debug("batch already claimed")
		return
	}
	o.metrics.IncBatchClaimed()
	batch.Status = domain.BatchStatusProcessing

	stalled := 0
	for {
		logger := logger.With(zap.Int64("runNumber", batch.RunNumber))

		published, err := o.publishRun(ctx, batch)
		if err != nil {
			logger.Error("failed to publish run", zap.Error(err))
			o.release(ctx, batch.ID)
			return
		}
		logger.Info("run published", zap.Int("recordCount", published))

		outcome, err := o.waiter.AwaitCompletion(ctx, batch.ID, batch.RunNumber, o.cfg.IdleTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrWaitInterrupted) {
				logger.Info("completion wait interrupted")
			} else {
				logger.Error("completion wait failed", zap.Error(err))
			}
			o.release(ctx, batch.ID)
			return
		}

		result, err := o.runs.CompleteRun(ctx, &batch)
		if err != nil {
			logger.Error("failed to complete run", zap.Error(err))
			o.release(ctx, batch.ID)
			return
		}

		if result.Status == domain.BatchStatusComplete {
			logger.Info("batch complete", zap.String("waitOutcome", string(outcome)))
			return
		}

		if result.Advanced() {
			stalled = 0
		} else {
			stalled++
		}
		if o.cfg.MaxStalledRuns > 0 && stalled >= o.cfg.MaxStalledRuns {
			logger.Warn("batch stopped making progress",
				zap.Int("stalledRuns", stalled),
				zap.Int64("movedCount", result.MovedCount),
			)
			if err := o.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusError); err != nil {
				logger.Error("failed to mark batch as errored", zap.Error(err))
			}
			return
		}

		// CompleteRun left the batch PENDING; take it back for the next run.
		reclaimed, err := o.batches.TransitionStatus(ctx, batch.ID, domain.BatchStatusPending, domain.BatchStatusProcessing)
		if err != nil {
			logger.Error("failed to reclaim batch", zap.Error(err))
			return
		}
		if !reclaimed {
			logger.Info("batch changed status between runs, stopping")
			return
		}
		batch.Status = domain.BatchStatusProcessing
	}
}

func (o *Orchestrator) publishRun(ctx context.Context, batch domain.Batch) (int, error) {
	records, err := o.records.ListByBatchAndRun(ctx, batch.ID, batch.RunNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to list records: %w", err)
	}

	published := 0
	for _, rec := range records {
		if rec.Status != domain.RecordStatusPending {
			continue
		}
		msg := queue.NewRecordMessage(batch.ClientID, rec)
		if id, ok := observability.CorrelationIDFromContext(ctx); ok {
			msg.CorrelationID = id
		}
		if err := o.publisher.Publish(ctx, o.cfg.Queue, msg); err != nil {
			return published, fmt.Errorf("failed to publish record %d: %w", rec.ID, err)
		}
		published++
	}
	return published, nil
}

// release hands a PROCESSING batch back to the scanner. It still runs when ctx
// is already cancelled.
func (o *Orchestrator) release(ctx context.Context, batchID int64) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if _, err := o.batches.TransitionStatus(releaseCtx, batchID, domain.BatchStatusProcessing, domain.BatchStatusPending); err != nil {
		o.logger.Error("failed to release batch", zap.Int64("batchId", batchID), zap.Error(err))
	}
}
