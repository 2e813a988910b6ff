package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id int64) (*domain.Batch, error)
	ListByStatus(ctx context.Context, status domain.BatchStatus) ([]domain.Batch, error)
	ListByStatusOrderedByCreateAsc(ctx context.Context, status domain.BatchStatus, limit int) ([]domain.Batch, error)
	CountByStatus(ctx context.Context, status domain.BatchStatus) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.BatchStatus) error
	UpdateStatusAndRun(ctx context.Context, id int64, status domain.BatchStatus, runNumber int64) error
	TransitionStatus(ctx context.Context, id int64, from, to domain.BatchStatus) (bool, error)
}

type GormBatchRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db, now: time.Now}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateWriteError(err)
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id int64) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) ListByStatus(ctx context.Context, status domain.BatchStatus) ([]domain.Batch, error) {
	var models []BatchModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return batchModelsToDomain(models), nil
}

func (r *GormBatchRepo) ListByStatusOrderedByCreateAsc(ctx context.Context, status domain.BatchStatus, limit int) ([]domain.Batch, error) {
	var models []BatchModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return batchModelsToDomain(models), nil
}

func (r *GormBatchRepo) CountByStatus(ctx context.Context, status domain.BatchStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *GormBatchRepo) UpdateStatus(ctx context.Context, id int64, status domain.BatchStatus) error {
	return r.update(ctx, id, map[string]any{
		"status":     status,
		"updated_at": r.now().UTC(),
	})
}

func (r *GormBatchRepo) UpdateStatusAndRun(ctx context.Context, id int64, status domain.BatchStatus, runNumber int64) error {
	return r.update(ctx, id, map[string]any{
		"status":     status,
		"run_number": runNumber,
		"updated_at": r.now().UTC(),
	})
}

// TransitionStatus moves the batch to status to only while it is still in status
// from. It reports false when another writer got there first.
func (r *GormBatchRepo) TransitionStatus(ctx context.Context, id int64, from, to domain.BatchStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormBatchRepo) update(ctx context.Context, id int64, values map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func batchModelsToDomain(models []BatchModel) []domain.Batch {
	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches
}
