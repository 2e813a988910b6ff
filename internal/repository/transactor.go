package repository

import (
	"context"

	"gorm.io/gorm"
)

// Stores bundles the repositories bound to a single database handle.
type Stores struct {
	Batches   BatchRepository
	Records   RecordRepository
	Responses ResponseRepository
}

func NewStores(db *gorm.DB) Stores {
	return Stores{
		Batches:   NewGormBatchRepo(db),
		Records:   NewGormRecordRepo(db),
		Responses: NewGormResponseRepo(db),
	}
}

// Transactor runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewStores(tx))
	})
}
