package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
)

// RunSummary holds per-status record counts for one run of a batch.
type RunSummary struct {
	BatchID   int64
	RunNumber int64
	Counts    map[domain.RecordStatus]int64
	Total     int64
}

// RunCompleter is the part of RunAdvancer the query service depends on.
type RunCompleter interface {
	CompleteRun(ctx context.Context, batch *domain.Batch) (*RunResult, error)
}

// BatchService answers read queries about batches and exposes the manual
// run controls used by operators.
type BatchService struct {
	batches   repository.BatchRepository
	records   repository.RecordRepository
	responses repository.ResponseRepository
	runs      RunCompleter
	logger    *zap.Logger
}

func NewBatchService(
	batches repository.BatchRepository,
	records repository.RecordRepository,
	responses repository.ResponseRepository,
	runs RunCompleter,
	logger *zap.Logger,
) (*BatchService, error) {
	if batches == nil || records == nil || responses == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches:   batches,
		records:   records,
		responses: responses,
		runs:      runs,
		logger:    logger,
	}, nil
}

func (s *BatchService) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: batch id must be positive", domain.ErrValidation)
	}
	return s.batches.GetByID(ctx, id)
}

func (s *BatchService) GetRunSummary(ctx context.Context, batchID, runNumber int64) (*RunSummary, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	if runNumber < 0 {
		return nil, fmt.Errorf("%w: run number must not be negative", domain.ErrValidation)
	}

	counts, err := s.records.CountByBatchRunGroupedByStatus(ctx, batchID, runNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	summary := &RunSummary{
		BatchID:   batchID,
		RunNumber: runNumber,
		Counts:    make(map[domain.RecordStatus]int64, len(counts)),
	}
	for _, c := range counts {
		summary.Counts[c.Status] = c.Count
		summary.Total += c.Count
	}
	return summary, nil
}

// ListBatches returns batches in the given status, oldest first. A positive
// limit caps the result.
func (s *BatchService) ListBatches(ctx context.Context, status domain.BatchStatus, limit int) ([]domain.Batch, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid batch status %q", domain.ErrValidation, status)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}
	if limit > 0 {
		return s.batches.ListByStatusOrderedByCreateAsc(ctx, status, limit)
	}
	return s.batches.ListByStatus(ctx, status)
}

// ListRecords returns the records of a run. An empty status returns all of them.
func (s *BatchService) ListRecords(ctx context.Context, batchID, runNumber int64, status domain.RecordStatus) ([]domain.Record, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid record status %q", domain.ErrValidation, status)
	}
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}

	records, err := s.records.ListByBatchAndRun(ctx, batchID, runNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if status == "" {
		return records, nil
	}

	filtered := records[:0]
	for _, r := range records {
		if r.Status == status {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListResponses returns the responses of a run. An empty status returns all of them.
func (s *BatchService) ListResponses(ctx context.Context, batchID, runNumber int64, status domain.ResponseStatus) ([]domain.Response, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid response status %q", domain.ErrValidation, status)
	}
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}

	responses, err := s.responses.ListByBatchAndRun(ctx, batchID, runNumber)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return responses, nil
	}

	filtered := responses[:0]
	for _, r := range responses {
		if r.Status == status {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListPendingResponseIdentifiers returns every (batch, run) with responses not
// yet written out.
func (s *BatchService) ListPendingResponseIdentifiers(ctx context.Context) ([]domain.ResponseIdentifier, error) {
	return s.responses.ListPendingIdentifiers(ctx)
}

// CompleteResponses marks the responses of a run as written out.
func (s *BatchService) CompleteResponses(ctx context.Context, batchID, runNumber int64) (int64, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return 0, err
	}

	n, err := s.responses.UpdateStatusForBatchRun(ctx, batchID, runNumber, domain.ResponseStatusComplete)
	if err != nil {
		return 0, fmt.Errorf("failed to complete responses: %w", err)
	}

	s.logger.Info("responses completed",
		zap.Int64("batchId", batchID),
		zap.Int64("runNumber", runNumber),
		zap.Int64("count", n),
	)
	return n, nil
}

// CompleteRun closes runNumber of a batch. It refuses with domain.ErrConflict
// when the batch has already moved past that run.
func (s *BatchService) CompleteRun(ctx context.Context, batchID, runNumber int64) (*RunResult, error) {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.RunNumber != runNumber {
		return nil, fmt.Errorf("%w: batch %d is at run %d", domain.ErrConflict, batchID, batch.RunNumber)
	}

	return s.runs.CompleteRun(ctx, batch)
}
