package service

import (
	"context"
	"testing"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMigratedDB opens a private in-memory sqlite database with the real schema.
func newMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrations.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func seedBatch(t *testing.T, db *gorm.DB, id int64, status domain.BatchStatus, runNumber int64) {
	t.Helper()

	err := db.Create(&repository.BatchModel{
		ID:        id,
		ClientID:  7,
		Filename:  "claims.csv",
		Status:    status,
		RunNumber: runNumber,
	}).Error
	if err != nil {
		t.Fatalf("seed batch %d error = %v", id, err)
	}
}

func seedRecord(t *testing.T, db *gorm.DB, id, batchID, runNumber int64, status domain.RecordStatus) {
	t.Helper()

	err := db.Create(&repository.RecordModel{
		ID:          id,
		BatchID:     batchID,
		RunNumber:   runNumber,
		Status:      status,
		ClaimNumber: "CLM-1",
		Payload:     `{"amount":100}`,
	}).Error
	if err != nil {
		t.Fatalf("seed record %d error = %v", id, err)
	}
}

func loadRecord(t *testing.T, db *gorm.DB, id int64) *domain.Record {
	t.Helper()

	rec, err := repository.NewGormRecordRepo(db).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d) error = %v", id, err)
	}
	return rec
}

func loadBatch(t *testing.T, db *gorm.DB, id int64) *domain.Batch {
	t.Helper()

	batch, err := repository.NewGormBatchRepo(db).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d) error = %v", id, err)
	}
	return batch
}
