package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/queue"
	"github.com/kursadbilgin/claim-validation/internal/ratelimit"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"github.com/kursadbilgin/claim-validation/internal/validator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Worker message results, used as the metric label.
const (
	workerResultCompleted  = "completed"
	workerResultIncomplete = "incomplete"
	workerResultSkipped    = "skipped"
	workerResultRetry      = "retry"
)

// ResponseCreator is the part of ResponseFinalizer the worker depends on.
type ResponseCreator interface {
	CreateResponse(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error)
}

type WorkerService struct {
	records     repository.RecordRepository
	responses   ResponseCreator
	consumer    queue.Consumer
	validator   validator.Validator
	rateLimiter ratelimit.RateLimiter
	queueName   string
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	records repository.RecordRepository,
	responses ResponseCreator,
	consumer queue.Consumer,
	v validator.Validator,
	rateLimiter ratelimit.RateLimiter,
	queueName string,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if responses == nil {
		return nil, fmt.Errorf("response creator is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if v == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if strings.TrimSpace(queueName) == "" {
		queueName = queue.DefaultRecordQueue
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		records:     records,
		responses:   responses,
		consumer:    consumer,
		validator:   v,
		rateLimiter: rateLimiter,
		queueName:   queueName,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs concurrency consumers on the record queue until ctx is cancelled.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", s.queueName),
			)

			err := s.consumer.Consume(groupCtx, s.queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", s.queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", s.queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// processMessage validates one record. A nil return acks the message; an
// error sends it back to the queue.
func (s *WorkerService) processMessage(ctx context.Context, msg queue.RecordMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(
		observability.RecordFields(msg.BatchID, msg.RunNumber, msg.RecordID)...,
	)

	record, err := s.records.GetByID(ctx, msg.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("record not found, skipping")
			s.metrics.IncWorkerMessage(workerResultSkipped)
			return nil
		}
		return fmt.Errorf("failed to load record: %w", err)
	}

	// Stale message: the record finished or moved to another run since publishing.
	if record.Status != domain.RecordStatusPending || record.RunNumber != msg.RunNumber {
		logger.Debug("record no longer pending for this run, skipping",
			zap.String("status", record.Status.String()),
			zap.Int64("currentRunNumber", record.RunNumber),
		)
		s.metrics.IncWorkerMessage(workerResultSkipped)
		return nil
	}

	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()

	if err := s.rateLimiter.Wait(ctx, ratelimit.ClientKey(msg.ClientID)); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	callStart := s.now()
	payload, validateErr := s.validator.Validate(ctx, *record)
	s.metrics.ObserveValidatorCall(s.now().Sub(callStart))

	if validateErr == nil {
		if _, err := s.responses.CreateResponse(ctx, payload, record); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				logger.Info("response already recorded, skipping")
				s.metrics.IncWorkerMessage(workerResultSkipped)
				return nil
			}
			s.metrics.IncWorkerMessage(workerResultRetry)
			return fmt.Errorf("failed to create response: %w", err)
		}
		s.metrics.IncWorkerMessage(workerResultCompleted)
		return nil
	}

	if validator.IsTransient(validateErr) {
		logger.Warn("transient validator failure, requeueing", zap.Error(validateErr))
		s.metrics.IncWorkerMessage(workerResultRetry)
		return fmt.Errorf("validator call failed: %w", validateErr)
	}

	// Permanent failure: the record waits for the next run, unless a duplicate
	// delivery finalized or moved it while the validator was running.
	moved, err := s.records.TransitionStatus(ctx, record.ID, record.RunNumber,
		domain.RecordStatusPending, domain.RecordStatusIncomplete)
	if err != nil {
		s.metrics.IncWorkerMessage(workerResultRetry)
		return fmt.Errorf("failed to mark record incomplete: %w", err)
	}
	if !moved {
		logger.Info("record changed during validation, skipping", zap.Error(validateErr))
		s.metrics.IncWorkerMessage(workerResultSkipped)
		return nil
	}
	logger.Warn("record marked incomplete", zap.Error(validateErr))
	s.metrics.IncWorkerMessage(workerResultIncomplete)
	return nil
}
