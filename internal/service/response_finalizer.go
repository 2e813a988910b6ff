package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
)

// ResponseFinalizer persists a validation outcome and marks its record COMPLETE.
type ResponseFinalizer struct {
	tx      repository.Transactor
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewResponseFinalizer(tx repository.Transactor, logger *zap.Logger) (*ResponseFinalizer, error) {
	if tx == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResponseFinalizer{tx: tx, logger: logger}, nil
}

func (f *ResponseFinalizer) SetMetrics(metrics *observability.Metrics) {
	if f == nil {
		return
	}
	f.metrics = metrics
}

// CreateResponse inserts a PENDING response for record and flips the record to
// COMPLETE in one transaction. Either both writes land or neither does. A second
// response for the same record fails with domain.ErrConflict.
func (f *ResponseFinalizer) CreateResponse(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error) {
	if record == nil || record.ID <= 0 {
		return nil, fmt.Errorf("%w: record is required", domain.ErrValidation)
	}

	response := domain.NewPendingResponse(payload, record)
	err := f.tx.WithinTransaction(ctx, func(ctx context.Context, stores repository.Stores) error {
		if err := stores.Responses.Create(ctx, response); err != nil {
			return fmt.Errorf("failed to insert response for record %d: %w", record.ID, err)
		}
		if _, err := stores.Records.UpdateStatus(ctx, record.ID, domain.RecordStatusComplete); err != nil {
			return fmt.Errorf("failed to mark record %d complete: %w", record.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.metrics.IncResponseCreated()
	observability.WithContextLogger(f.logger, ctx).Debug("response created",
		append(observability.RecordFields(record.BatchID, record.RunNumber, record.ID),
			zap.Int64("responseId", response.ID),
		)...,
	)

	record.Status = domain.RecordStatusComplete
	return response, nil
}
