package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
)

const recordInsertChunkSize = 500

// BatchLoader registers an uploaded batch and its records at run 0.
type BatchLoader struct {
	batches repository.BatchRepository
	tx      repository.Transactor
	logger  *zap.Logger
}

func NewBatchLoader(batches repository.BatchRepository, tx repository.Transactor, logger *zap.Logger) (*BatchLoader, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchLoader{batches: batches, tx: tx, logger: logger}, nil
}

// Load inserts batch as LOADING, then stores the records and flips the batch to
// PENDING in one transaction. If that transaction fails the batch is left in
// ERROR so it is never picked up half loaded.
func (l *BatchLoader) Load(ctx context.Context, batch *domain.Batch, records []*domain.Record) (*domain.Batch, error) {
	if batch == nil {
		return nil, fmt.Errorf("%w: batch is required", domain.ErrValidation)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: batch must contain at least one record", domain.ErrValidation)
	}

	batch.Status = domain.BatchStatusLoading
	batch.RunNumber = 0
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d is nil", domain.ErrValidation, i)
		}
		rec.RunNumber = 0
		rec.Status = domain.RecordStatusPending
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	if err := l.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	err := l.tx.WithinTransaction(ctx, func(ctx context.Context, stores repository.Stores) error {
		for _, rec := range records {
			rec.BatchID = batch.ID
		}
		if err := stores.Records.CreateInBatches(ctx, records, recordInsertChunkSize); err != nil {
			return fmt.Errorf("failed to insert records: %w", err)
		}
		return stores.Batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusPending)
	})
	if err != nil {
		if markErr := l.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusError); markErr != nil {
			l.logger.Error("failed to mark batch as errored",
				zap.Int64("batchId", batch.ID),
				zap.Error(markErr),
			)
		} else {
			batch.Status = domain.BatchStatusError
		}
		return nil, fmt.Errorf("failed to load batch %d: %w", batch.ID, err)
	}

	batch.Status = domain.BatchStatusPending
	observability.WithContextLogger(l.logger, ctx).Info("batch loaded",
		zap.Int64("batchId", batch.ID),
		zap.Int64("clientId", batch.ClientID),
		zap.String("filename", batch.Filename),
		zap.Int("recordCount", len(records)),
	)
	return batch, nil
}
