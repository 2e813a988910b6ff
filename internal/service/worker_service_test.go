package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/queue"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"github.com/kursadbilgin/claim-validation/internal/validator"
	"go.uber.org/zap"
)

func pendingRecord() *domain.Record {
	return &domain.Record{
		ID:          42,
		BatchID:     10,
		RunNumber:   3,
		Status:      domain.RecordStatusPending,
		ClaimNumber: "CLM-42",
		Payload:     `{"amount":100}`,
	}
}

func recordMessage() queue.RecordMessage {
	return queue.RecordMessage{
		EventID:   "evt-1",
		ClientID:  7,
		BatchID:   10,
		RunNumber: 3,
		RecordID:  42,
	}
}

func newTestWorker(
	t *testing.T,
	records *fakeRecordRepo,
	responses *fakeResponseCreator,
	v *fakeValidator,
	limiter *fakeRateLimiter,
) *WorkerService {
	t.Helper()

	if limiter == nil {
		limiter = &fakeRateLimiter{}
	}
	worker, err := NewWorkerService(records, responses, &fakeConsumer{}, v, limiter, "", 2, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	worker.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return worker
}

func TestWorkerServiceProcessMessageSuccess(t *testing.T) {
	t.Parallel()

	var gotPayload string
	records := &fakeRecordRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
			return pendingRecord(), nil
		},
		transitionFn: func(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error) {
			t.Fatalf("TransitionStatus should not be called on success")
			return false, nil
		},
	}
	responses := &fakeResponseCreator{
		createFn: func(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error) {
			gotPayload = payload
			if record.ID != 42 {
				t.Fatalf("record id = %d, want 42", record.ID)
			}
			return domain.NewPendingResponse(payload, record), nil
		},
	}
	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, key string) error {
			if key != "client:7" {
				t.Fatalf("limiter key = %q, want client:7", key)
			}
			return nil
		},
	}
	v := &fakeValidator{
		validateFn: func(ctx context.Context, record domain.Record) (string, error) {
			return `{"valid":true}`, nil
		},
	}

	worker := newTestWorker(t, records, responses, v, limiter)
	if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if gotPayload != `{"valid":true}` {
		t.Fatalf("payload = %q, want validator body", gotPayload)
	}
}

func TestWorkerServiceProcessMessageTransientRequeues(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
			return pendingRecord(), nil
		},
		transitionFn: func(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error) {
			t.Fatalf("TransitionStatus should not be called on transient failure")
			return false, nil
		},
	}
	v := &fakeValidator{
		validateFn: func(ctx context.Context, record domain.Record) (string, error) {
			return "", &validator.ValidatorError{StatusCode: 503, Message: "unavailable", Transient: true}
		},
	}

	worker := newTestWorker(t, records, &fakeResponseCreator{}, v, nil)
	err := worker.processMessage(context.Background(), recordMessage())
	if err == nil {
		t.Fatal("processMessage() error = nil, want transient error for requeue")
	}
	if !validator.IsTransient(err) {
		t.Fatalf("error = %v, want transient validator error", err)
	}
}

func TestWorkerServiceProcessMessagePermanentMarksIncomplete(t *testing.T) {
	t.Parallel()

	var gotRun int64
	var gotFrom, gotTo domain.RecordStatus
	records := &fakeRecordRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
			return pendingRecord(), nil
		},
		updateStatusFn: func(ctx context.Context, id int64, status domain.RecordStatus) (int64, error) {
			t.Fatalf("permanent failure must use a conditional transition")
			return 0, nil
		},
		transitionFn: func(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error) {
			gotRun, gotFrom, gotTo = runNumber, from, to
			return true, nil
		},
	}
	responses := &fakeResponseCreator{
		createFn: func(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error) {
			t.Fatalf("CreateResponse should not be called on permanent failure")
			return nil, nil
		},
	}
	v := &fakeValidator{
		validateFn: func(ctx context.Context, record domain.Record) (string, error) {
			return "", &validator.ValidatorError{StatusCode: 422, Message: "unprocessable"}
		},
	}

	worker := newTestWorker(t, records, responses, v, nil)
	if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if gotRun != 3 || gotFrom != domain.RecordStatusPending || gotTo != domain.RecordStatusIncomplete {
		t.Fatalf("transition = run %d %s->%s, want run 3 PENDING->INCOMPLETE", gotRun, gotFrom, gotTo)
	}
}

func TestWorkerServiceProcessMessagePermanentSkipsRecordChangedMeanwhile(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
			return pendingRecord(), nil
		},
		transitionFn: func(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error) {
			return false, nil
		},
	}
	v := &fakeValidator{
		validateFn: func(ctx context.Context, record domain.Record) (string, error) {
			return "", &validator.ValidatorError{StatusCode: 422, Message: "unprocessable"}
		},
	}

	worker := newTestWorker(t, records, &fakeResponseCreator{}, v, nil)
	if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
		t.Fatalf("processMessage() error = %v, want ack", err)
	}
}

func TestWorkerServiceDuplicateDeliveryKeepsFinalizedRecordComplete(t *testing.T) {
	t.Parallel()

	db := newMigratedDB(t)
	seedBatch(t, db, 10, domain.BatchStatusProcessing, 3)
	seedRecord(t, db, 42, 10, 3, domain.RecordStatusPending)

	stores := repository.NewStores(db)
	finalizer, err := NewResponseFinalizer(repository.NewGormTransactor(db), zap.NewNop())
	if err != nil {
		t.Fatalf("NewResponseFinalizer() error = %v", err)
	}

	// The first delivery is still waiting on the validator when a second
	// delivery of the same record finalizes it.
	v := &fakeValidator{
		validateFn: func(ctx context.Context, record domain.Record) (string, error) {
			rec := record
			if _, err := finalizer.CreateResponse(ctx, "RESP-XML", &rec); err != nil {
				t.Fatalf("CreateResponse() error = %v", err)
			}
			return "", &validator.ValidatorError{StatusCode: 422, Message: "unprocessable"}
		},
	}

	worker, err := NewWorkerService(stores.Records, finalizer, &fakeConsumer{}, v, &fakeRateLimiter{}, "", 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if got := loadRecord(t, db, 42).Status; got != domain.RecordStatusComplete {
		t.Fatalf("record status = %s, want COMPLETE", got)
	}
	responses, err := stores.Responses.ListByBatchAndRun(context.Background(), 10, 3)
	if err != nil {
		t.Fatalf("ListByBatchAndRun() error = %v", err)
	}
	if len(responses) != 1 || responses[0].RecordID != 42 {
		t.Fatalf("responses = %+v, want one response for record 42", responses)
	}
}

func TestWorkerServiceProcessMessageSkipsStaleMessages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		record *domain.Record
	}{
		{name: "already complete", record: &domain.Record{ID: 42, RunNumber: 3, Status: domain.RecordStatusComplete}},
		{name: "moved to next run", record: &domain.Record{ID: 42, RunNumber: 4, Status: domain.RecordStatusPending}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			records := &fakeRecordRepo{
				getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
					return tc.record, nil
				},
			}
			v := &fakeValidator{
				validateFn: func(ctx context.Context, record domain.Record) (string, error) {
					t.Fatalf("validator should not be called for a stale message")
					return "", nil
				},
			}

			worker := newTestWorker(t, records, &fakeResponseCreator{}, v, nil)
			if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
				t.Fatalf("processMessage() error = %v", err)
			}
		})
	}
}

func TestWorkerServiceProcessMessageRecordNotFoundAck(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(t, &fakeRecordRepo{}, &fakeResponseCreator{}, &fakeValidator{}, nil)
	if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
		t.Fatalf("processMessage() error = %v, want ack on missing record", err)
	}
}

func TestWorkerServiceProcessMessageDuplicateResponseAck(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
			return pendingRecord(), nil
		},
	}
	responses := &fakeResponseCreator{
		createFn: func(ctx context.Context, payload string, record *domain.Record) (*domain.Response, error) {
			return nil, domain.ErrConflict
		},
	}

	worker := newTestWorker(t, records, responses, &fakeValidator{}, nil)
	if err := worker.processMessage(context.Background(), recordMessage()); err != nil {
		t.Fatalf("processMessage() error = %v, want ack on duplicate response", err)
	}
}

func TestWorkerServiceProcessMessageRateLimiterError(t *testing.T) {
	t.Parallel()

	limiterErr := errors.New("redis unavailable")
	records := &fakeRecordRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Record, error) {
			return pendingRecord(), nil
		},
	}
	v := &fakeValidator{
		validateFn: func(ctx context.Context, record domain.Record) (string, error) {
			t.Fatalf("validator should not be called when limiter fails")
			return "", nil
		},
	}

	worker := newTestWorker(t, records, &fakeResponseCreator{}, v, &fakeRateLimiter{
		waitFn: func(ctx context.Context, key string) error { return limiterErr },
	})
	err := worker.processMessage(context.Background(), recordMessage())
	if !errors.Is(err, limiterErr) {
		t.Fatalf("processMessage() error = %v, want %v", err, limiterErr)
	}
}

func TestWorkerServiceStartPropagatesConsumerError(t *testing.T) {
	t.Parallel()

	consumeErr := errors.New("channel closed")
	var gotQueue string
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			gotQueue = queueName
			return consumeErr
		},
	}

	worker, err := NewWorkerService(
		&fakeRecordRepo{},
		&fakeResponseCreator{},
		consumer,
		&fakeValidator{},
		&fakeRateLimiter{},
		"claims.custom",
		1,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}

	if err := worker.Start(context.Background()); !errors.Is(err, consumeErr) {
		t.Fatalf("Start() error = %v, want %v", err, consumeErr)
	}
	if gotQueue != "claims.custom" {
		t.Fatalf("queue = %q, want claims.custom", gotQueue)
	}
}

func TestNewWorkerServiceDefaults(t *testing.T) {
	t.Parallel()

	worker, err := NewWorkerService(&fakeRecordRepo{}, &fakeResponseCreator{}, &fakeConsumer{}, &fakeValidator{}, &fakeRateLimiter{}, " ", 0, nil)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	if worker.concurrency != 1 {
		t.Fatalf("concurrency = %d, want 1", worker.concurrency)
	}
	if worker.queueName != queue.DefaultRecordQueue {
		t.Fatalf("queue = %q, want %q", worker.queueName, queue.DefaultRecordQueue)
	}

	if _, err := NewWorkerService(nil, &fakeResponseCreator{}, &fakeConsumer{}, &fakeValidator{}, &fakeRateLimiter{}, "", 1, nil); err == nil {
		t.Fatal("NewWorkerService(nil records) should fail")
	}
}
