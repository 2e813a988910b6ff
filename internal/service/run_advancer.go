package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
)

// Outcomes of closing a run, as reported in logs and metrics.
const (
	RunOutcomeAdvanced = "advanced"
	RunOutcomeRepeated = "repeated"
	RunOutcomeComplete = "complete"
)

// rehomedStatuses are the record states carried into the following run.
// COMPLETE records stay behind at the run that finalized them.
var rehomedStatuses = []domain.RecordStatus{
	domain.RecordStatusIncomplete,
	domain.RecordStatusPending,
}

// RunResult describes what CompleteRun decided for a batch.
type RunResult struct {
	BatchID        int64
	PreviousRun    int64
	NextRun        int64
	Status         domain.BatchStatus
	CompletedCount int64
	MovedCount     int64
}

// Advanced reports whether the batch moved to a new run number.
func (r RunResult) Advanced() bool {
	return r.NextRun > r.PreviousRun
}

func (r RunResult) Outcome() string {
	switch {
	case r.Status == domain.BatchStatusComplete:
		return RunOutcomeComplete
	case r.Advanced():
		return RunOutcomeAdvanced
	default:
		return RunOutcomeRepeated
	}
}

// RunAdvancer closes out the current run of a batch and decides its next state.
type RunAdvancer struct {
	tx      repository.Transactor
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewRunAdvancer(tx repository.Transactor, logger *zap.Logger) (*RunAdvancer, error) {
	if tx == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RunAdvancer{tx: tx, logger: logger}, nil
}

func (a *RunAdvancer) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// CompleteRun counts the COMPLETE records of the batch's current run, moves the
// INCOMPLETE and PENDING ones to the next run as PENDING and updates the batch,
// all in one transaction. The run number only advances when at least one record
// completed; the batch becomes COMPLETE when nothing was left to move.
//
// The batch argument must carry the run number the caller believes is current.
// A mismatch with the stored row returns domain.ErrConflict without writing.
func (a *RunAdvancer) CompleteRun(ctx context.Context, batch *domain.Batch) (*RunResult, error) {
	if batch == nil || batch.ID <= 0 {
		return nil, fmt.Errorf("%w: batch is required", domain.ErrValidation)
	}

	var result RunResult
	err := a.tx.WithinTransaction(ctx, func(ctx context.Context, stores repository.Stores) error {
		stored, err := stores.Batches.GetByID(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("failed to load batch %d: %w", batch.ID, err)
		}
		if stored.RunNumber != batch.RunNumber {
			return fmt.Errorf("%w: batch %d is at run %d, not %d",
				domain.ErrConflict, batch.ID, stored.RunNumber, batch.RunNumber)
		}

		currentRun := stored.RunNumber
		completed, err := stores.Records.CountByBatchRunStatus(ctx, batch.ID, currentRun, domain.RecordStatusComplete)
		if err != nil {
			return fmt.Errorf("failed to count completed records: %w", err)
		}

		nextRun := currentRun
		if completed > 0 {
			nextRun = currentRun + 1
		}

		var moved int64
		for _, from := range rehomedStatuses {
			n, err := stores.Records.BulkUpdateStatusAndRun(ctx, batch.ID, currentRun, from, nextRun, domain.RecordStatusPending)
			if err != nil {
				return fmt.Errorf("failed to move %s records to run %d: %w", from, nextRun, err)
			}
			moved += n
		}

		status := domain.BatchStatusComplete
		runNumber := currentRun
		if moved > 0 {
			status = domain.BatchStatusPending
			runNumber = nextRun
		}
		if err := stores.Batches.UpdateStatusAndRun(ctx, batch.ID, status, runNumber); err != nil {
			return fmt.Errorf("failed to update batch %d: %w", batch.ID, err)
		}

		result = RunResult{
			BatchID:        batch.ID,
			PreviousRun:    currentRun,
			NextRun:        runNumber,
			Status:         status,
			CompletedCount: completed,
			MovedCount:     moved,
		}
		return nil
	})
	if err != nil {
		a.logger.Error("complete run failed",
			append(observability.RunFields(batch.ID, batch.RunNumber), zap.Error(err))...,
		)
		return nil, err
	}

	a.metrics.ObserveRunCompleted(result.Outcome(), result.MovedCount)
	observability.WithContextLogger(a.logger, ctx).Info("run completed",
		append(observability.RunFields(result.BatchID, result.PreviousRun),
			zap.Int64("nextRunNumber", result.NextRun),
			zap.String("status", result.Status.String()),
			zap.Int64("completedCount", result.CompletedCount),
			zap.Int64("movedCount", result.MovedCount),
			zap.String("outcome", result.Outcome()),
		)...,
	)

	batch.Status = result.Status
	batch.RunNumber = result.NextRun
	return &result, nil
}
