package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/queue"
	"github.com/kursadbilgin/claim-validation/internal/repository"
)

type fakeBatchRepo struct {
	createFn             func(ctx context.Context, b *domain.Batch) error
	getByIDFn            func(ctx context.Context, id int64) (*domain.Batch, error)
	listByStatusFn       func(ctx context.Context, status domain.BatchStatus) ([]domain.Batch, error)
	listOldestFn         func(ctx context.Context, status domain.BatchStatus, limit int) ([]domain.Batch, error)
	updateStatusFn       func(ctx context.Context, id int64, status domain.BatchStatus) error
	updateStatusAndRunFn func(ctx context.Context, id int64, status domain.BatchStatus, runNumber int64) error
	transitionStatusFn   func(ctx context.Context, id int64, from, to domain.BatchStatus) (bool, error)
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	if f.createFn != nil {
		return f.createFn(ctx, b)
	}
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, id int64) (*domain.Batch, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBatchRepo) ListByStatus(ctx context.Context, status domain.BatchStatus) ([]domain.Batch, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, status)
	}
	return nil, nil
}

func (f *fakeBatchRepo) ListByStatusOrderedByCreateAsc(ctx context.Context, status domain.BatchStatus, limit int) ([]domain.Batch, error) {
	if f.listOldestFn != nil {
		return f.listOldestFn(ctx, status, limit)
	}
	return nil, nil
}

func (f *fakeBatchRepo) CountByStatus(ctx context.Context, status domain.BatchStatus) (int64, error) {
	return 0, nil
}

func (f *fakeBatchRepo) UpdateStatus(ctx context.Context, id int64, status domain.BatchStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return nil
}

func (f *fakeBatchRepo) UpdateStatusAndRun(ctx context.Context, id int64, status domain.BatchStatus, runNumber int64) error {
	if f.updateStatusAndRunFn != nil {
		return f.updateStatusAndRunFn(ctx, id, status, runNumber)
	}
	return nil
}

func (f *fakeBatchRepo) TransitionStatus(ctx context.Context, id int64, from, to domain.BatchStatus) (bool, error) {
	if f.transitionStatusFn != nil {
		return f.transitionStatusFn(ctx, id, from, to)
	}
	return true, nil
}

type fakeRecordRepo struct {
	getByIDFn         func(ctx context.Context, id int64) (*domain.Record, error)
	createInBatchesFn func(ctx context.Context, records []*domain.Record, chunkSize int) error
	listByBatchAndRun func(ctx context.Context, batchID, runNumber int64) ([]domain.Record, error)
	listLatestFn      func(ctx context.Context, batchID, runNumber int64, limit int) ([]domain.Record, error)
	countFn           func(ctx context.Context, batchID, runNumber int64, status domain.RecordStatus) (int64, error)
	countGroupedFn    func(ctx context.Context, batchID, runNumber int64) ([]repository.StatusCount, error)
	updateStatusFn    func(ctx context.Context, id int64, status domain.RecordStatus) (int64, error)
	transitionFn      func(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error)
	bulkUpdateFn      func(ctx context.Context, batchID, runNumber int64, from domain.RecordStatus, newRun int64, newStatus domain.RecordStatus) (int64, error)
}

func (f *fakeRecordRepo) Create(ctx context.Context, rec *domain.Record) error {
	return nil
}

func (f *fakeRecordRepo) CreateInBatches(ctx context.Context, records []*domain.Record, chunkSize int) error {
	if f.createInBatchesFn != nil {
		return f.createInBatchesFn(ctx, records, chunkSize)
	}
	return nil
}

func (f *fakeRecordRepo) GetByID(ctx context.Context, id int64) (*domain.Record, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecordRepo) ListByBatchAndRun(ctx context.Context, batchID, runNumber int64) ([]domain.Record, error) {
	if f.listByBatchAndRun != nil {
		return f.listByBatchAndRun(ctx, batchID, runNumber)
	}
	return nil, nil
}

func (f *fakeRecordRepo) ListByBatchAndRunOrderedByUpdateDesc(ctx context.Context, batchID, runNumber int64, limit int) ([]domain.Record, error) {
	if f.listLatestFn != nil {
		return f.listLatestFn(ctx, batchID, runNumber, limit)
	}
	return nil, nil
}

func (f *fakeRecordRepo) CountByBatchRunStatus(ctx context.Context, batchID, runNumber int64, status domain.RecordStatus) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx, batchID, runNumber, status)
	}
	return 0, nil
}

func (f *fakeRecordRepo) CountByBatchRunGroupedByStatus(ctx context.Context, batchID, runNumber int64) ([]repository.StatusCount, error) {
	if f.countGroupedFn != nil {
		return f.countGroupedFn(ctx, batchID, runNumber)
	}
	return nil, nil
}

func (f *fakeRecordRepo) UpdateStatus(ctx context.Context, id int64, status domain.RecordStatus) (int64, error) {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status)
	}
	return 1, nil
}

func (f *fakeRecordRepo) TransitionStatus(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error) {
	if f.transitionFn != nil {
		return f.transitionFn(ctx, id, runNumber, from, to)
	}
	return true, nil
}

func (f *fakeRecordRepo) BulkUpdateStatusAndRun(
	ctx context.Context,
	batchID, runNumber int64,
	from domain.RecordStatus,
	newRun int64,
	newStatus domain.RecordStatus,
) (int64, error) {
	if f.bulkUpdateFn != nil {
		return f.bulkUpdateFn(ctx, batchID, runNumber, from, newRun, newStatus)
	}
	return 0, nil
}

type fakeResponseRepo struct {
	createFn            func(ctx context.Context, resp *domain.Response) error
	listFn              func(ctx context.Context, batchID, runNumber int64) ([]domain.Response, error)
	listPendingFn       func(ctx context.Context) ([]domain.ResponseIdentifier, error)
	updateForBatchRunFn func(ctx context.Context, batchID, runNumber int64, status domain.ResponseStatus) (int64, error)
}

func (f *fakeResponseRepo) Create(ctx context.Context, resp *domain.Response) error {
	if f.createFn != nil {
		return f.createFn(ctx, resp)
	}
	return nil
}

func (f *fakeResponseRepo) ListByBatchAndRun(ctx context.Context, batchID, runNumber int64) ([]domain.Response, error) {
	if f.listFn != nil {
		return f.listFn(ctx, batchID, runNumber)
	}
	return nil, nil
}

func (f *fakeResponseRepo) ListPendingIdentifiers(ctx context.Context) ([]domain.ResponseIdentifier, error) {
	if f.listPendingFn != nil {
		return f.listPendingFn(ctx)
	}
	return nil, nil
}

func (f *fakeResponseRepo) UpdateStatusForBatchRun(ctx context.Context, batchID, runNumber int64, status domain.ResponseStatus) (int64, error) {
	if f.updateForBatchRunFn != nil {
		return f.updateForBatchRunFn(ctx, batchID, runNumber, status)
	}
	return 0, nil
}

// fakeTransactor runs fn against its stores without a real transaction.
type fakeTransactor struct {
	stores repository.Stores
	calls  int
}

func (f *fakeTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	f.calls++
	return fn(ctx, f.stores)
}

type fakePublisher struct {
	mu        sync.Mutex
	publishFn func(ctx context.Context, queueName string, msg queue.RecordMessage) error
	published []queue.RecordMessage
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.RecordMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.published = append(f.published, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeValidator struct {
	validateFn func(ctx context.Context, record domain.Record) (string, error)
}

func (f *fakeValidator) Validate(ctx context.Context, record domain.Record) (string, error) {
	if f.validateFn != nil {
		return f.validateFn(ctx, record)
	}
	return "ok", nil
}

type fakeResponseCreator struct {
	createFn func(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error)
}

func (f *fakeResponseCreator) CreateResponse(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error) {
	if f.createFn != nil {
		return f.createFn(ctx, payload, record)
	}
	return domain.NewPendingResponse(payload, record), nil
}

type fakeRunWaiter struct {
	awaitFn func(ctx context.Context, batchID, runNumber int64, idle time.Duration) (WaitOutcome, error)
}

func (f *fakeRunWaiter) AwaitCompletion(ctx context.Context, batchID, runNumber int64, idle time.Duration) (WaitOutcome, error) {
	if f.awaitFn != nil {
		return f.awaitFn(ctx, batchID, runNumber, idle)
	}
	return WaitDrained, nil
}

type fakeRunCompleter struct {
	completeFn func(ctx context.Context, batch *domain.Batch) (*RunResult, error)
}

func (f *fakeRunCompleter) CompleteRun(ctx context.Context, batch *domain.Batch) (*RunResult, error) {
	return f.completeFn(ctx, batch)
}

// fakeClock advances only when the code under test sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
