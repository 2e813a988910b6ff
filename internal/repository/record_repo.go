package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"gorm.io/gorm"
)

// StatusCount is one row of a per-status aggregate.
type StatusCount struct {
	Status domain.RecordStatus `gorm:"column:status"`
	Count  int64               `gorm:"column:count"`
}

type RecordRepository interface {
	Create(ctx context.Context, rec *domain.Record) error
	CreateInBatches(ctx context.Context, records []*domain.Record, chunkSize int) error
	GetByID(ctx context.Context, id int64) (*domain.Record, error)
	ListByBatchAndRun(ctx context.Context, batchID, runNumber int64) ([]domain.Record, error)
	ListByBatchAndRunOrderedByUpdateDesc(ctx context.Context, batchID, runNumber int64, limit int) ([]domain.Record, error)
	CountByBatchRunStatus(ctx context.Context, batchID, runNumber int64, status domain.RecordStatus) (int64, error)
	CountByBatchRunGroupedByStatus(ctx context.Context, batchID, runNumber int64) ([]StatusCount, error)
	UpdateStatus(ctx context.Context, id int64, status domain.RecordStatus) (int64, error)
	TransitionStatus(ctx context.Context, id, runNumber int64, from, to domain.RecordStatus) (bool, error)
	BulkUpdateStatusAndRun(
		ctx context.Context,
		batchID, runNumber int64,
		from domain.RecordStatus,
		newRunNumber int64,
		newStatus domain.RecordStatus,
	) (int64, error)
}

type GormRecordRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRecordRepo(db *gorm.DB) *GormRecordRepo {
	return &GormRecordRepo{db: db, now: time.Now}
}

func (r *GormRecordRepo) Create(ctx context.Context, rec *domain.Record) error {
	model := recordModelFromDomain(rec)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateWriteError(err)
	}
	if rec != nil {
		*rec = *recordModelToDomain(model)
	}
	return nil
}

func (r *GormRecordRepo) CreateInBatches(ctx context.Context, records []*domain.Record, chunkSize int) error {
	models := make([]RecordModel, 0, len(records))
	modelIndexes := make([]int, 0, len(records))
	for i, rec := range records {
		model := recordModelFromDomain(rec)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = 100
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, chunkSize).Error; err != nil {
		return translateWriteError(err)
	}

	for i := range models {
		idx := modelIndexes[i]
		*records[idx] = *recordModelToDomain(&models[i])
	}

	return nil
}

func (r *GormRecordRepo) GetByID(ctx context.Context, id int64) (*domain.Record, error) {
	var model RecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormRecordRepo) ListByBatchAndRun(ctx context.Context, batchID, runNumber int64) ([]domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND run_number = ?", batchID, runNumber).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return recordModelsToDomain(models), nil
}

func (r *GormRecordRepo) ListByBatchAndRunOrderedByUpdateDesc(
	ctx context.Context,
	batchID, runNumber int64,
	limit int,
) ([]domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND run_number = ?", batchID, runNumber).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return recordModelsToDomain(models), nil
}

func (r *GormRecordRepo) CountByBatchRunStatus(
	ctx context.Context,
	batchID, runNumber int64,
	status domain.RecordStatus,
) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("batch_id = ? AND run_number = ? AND status = ?", batchID, runNumber, status).
		Count(&count).Error
	return count, err
}

func (r *GormRecordRepo) CountByBatchRunGroupedByStatus(ctx context.Context, batchID, runNumber int64) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Select("status, COUNT(*) as count").
		Where("batch_id = ? AND run_number = ?", batchID, runNumber).
		Group("status").
		Order("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// UpdateStatus returns domain.ErrNotFound when no record has the given id.
func (r *GormRecordRepo) UpdateStatus(ctx context.Context, id int64, status domain.RecordStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, domain.ErrNotFound
	}
	return result.RowsAffected, nil
}

// TransitionStatus moves the record to status to only while it is still in
// status from at runNumber. It reports false when another writer got there first.
func (r *GormRecordRepo) TransitionStatus(
	ctx context.Context,
	id, runNumber int64,
	from, to domain.RecordStatus,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ? AND run_number = ? AND status = ?", id, runNumber, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// BulkUpdateStatusAndRun re-homes every record of (batchID, runNumber) in status from.
// Matching nothing is not an error.
func (r *GormRecordRepo) BulkUpdateStatusAndRun(
	ctx context.Context,
	batchID, runNumber int64,
	from domain.RecordStatus,
	newRunNumber int64,
	newStatus domain.RecordStatus,
) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("batch_id = ? AND run_number = ? AND status = ?", batchID, runNumber, from).
		Updates(map[string]any{
			"status":     newStatus,
			"run_number": newRunNumber,
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func recordModelsToDomain(models []RecordModel) []domain.Record {
	records := make([]domain.Record, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}
	return records
}
