package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"go.uber.org/zap"
)

func claimRecords(n int) []*domain.Record {
	records := make([]*domain.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &domain.Record{
			ClaimNumber: "CLM-" + string(rune('A'+i)),
			Payload:     `{"amount":10}`,
		})
	}
	return records
}

func TestBatchLoaderLoadsBatchAtRunZero(t *testing.T) {
	t.Parallel()

	db := newMigratedDB(t)
	loader, err := NewBatchLoader(repository.NewGormBatchRepo(db), repository.NewGormTransactor(db), zap.NewNop())
	if err != nil {
		t.Fatalf("NewBatchLoader() error = %v", err)
	}

	batch, err := loader.Load(context.Background(), &domain.Batch{ClientID: 7, Filename: "claims.csv"}, claimRecords(3))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if batch.ID <= 0 || batch.Status != domain.BatchStatusPending || batch.RunNumber != 0 {
		t.Fatalf("batch = %+v, want stored PENDING at run 0", batch)
	}

	stored := loadBatch(t, db, batch.ID)
	if stored.Status != domain.BatchStatusPending {
		t.Fatalf("stored status = %s, want PENDING", stored.Status)
	}

	pending, err := repository.NewGormRecordRepo(db).CountByBatchRunStatus(context.Background(), batch.ID, 0, domain.RecordStatusPending)
	if err != nil {
		t.Fatalf("CountByBatchRunStatus() error = %v", err)
	}
	if pending != 3 {
		t.Fatalf("pending records = %d, want 3", pending)
	}
}

func TestBatchLoaderMarksBatchErrorWhenRecordsFail(t *testing.T) {
	t.Parallel()

	insertErr := errors.New("disk full")
	var statuses []domain.BatchStatus
	batches := &fakeBatchRepo{
		createFn: func(ctx context.Context, b *domain.Batch) error {
			b.ID = 99
			return nil
		},
		updateStatusFn: func(ctx context.Context, id int64, status domain.BatchStatus) error {
			statuses = append(statuses, status)
			return nil
		},
	}
	tx := &fakeTransactor{stores: repository.Stores{
		Batches: batches,
		Records: &fakeRecordRepo{
			createInBatchesFn: func(ctx context.Context, records []*domain.Record, chunkSize int) error {
				for _, r := range records {
					if r.BatchID != 99 {
						t.Fatalf("record batch id = %d, want 99", r.BatchID)
					}
				}
				return insertErr
			},
		},
	}}

	loader, err := NewBatchLoader(batches, tx, nil)
	if err != nil {
		t.Fatalf("NewBatchLoader() error = %v", err)
	}

	batch := &domain.Batch{ClientID: 7, Filename: "claims.csv"}
	if _, err := loader.Load(context.Background(), batch, claimRecords(2)); !errors.Is(err, insertErr) {
		t.Fatalf("Load() error = %v, want %v", err, insertErr)
	}
	if len(statuses) != 1 || statuses[0] != domain.BatchStatusError {
		t.Fatalf("status updates = %v, want [ERROR]", statuses)
	}
	if batch.Status != domain.BatchStatusError {
		t.Fatalf("batch status = %s, want ERROR", batch.Status)
	}
}

func TestBatchLoaderValidatesInput(t *testing.T) {
	t.Parallel()

	loader, err := NewBatchLoader(&fakeBatchRepo{
		createFn: func(ctx context.Context, b *domain.Batch) error {
			t.Fatalf("Create should not be called for invalid input")
			return nil
		},
	}, &fakeTransactor{}, nil)
	if err != nil {
		t.Fatalf("NewBatchLoader() error = %v", err)
	}

	cases := []struct {
		name    string
		batch   *domain.Batch
		records []*domain.Record
	}{
		{name: "nil batch", records: claimRecords(1)},
		{name: "no records", batch: &domain.Batch{ClientID: 7, Filename: "a.csv"}},
		{name: "missing filename", batch: &domain.Batch{ClientID: 7}, records: claimRecords(1)},
		{name: "record without claim", batch: &domain.Batch{ClientID: 7, Filename: "a.csv"}, records: []*domain.Record{{Payload: "{}"}}},
	}

	for _, tc := range cases {
		if _, err := loader.Load(context.Background(), tc.batch, tc.records); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: Load() error = %v, want ErrValidation", tc.name, err)
		}
	}
}
