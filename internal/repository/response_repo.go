package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"gorm.io/gorm"
)

type ResponseRepository interface {
	Create(ctx context.Context, resp *domain.Response) error
	ListByBatchAndRun(ctx context.Context, batchID, runNumber int64) ([]domain.Response, error)
	ListPendingIdentifiers(ctx context.Context) ([]domain.ResponseIdentifier, error)
	UpdateStatusForBatchRun(ctx context.Context, batchID, runNumber int64, status domain.ResponseStatus) (int64, error)
}

type GormResponseRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormResponseRepo(db *gorm.DB) *GormResponseRepo {
	return &GormResponseRepo{db: db, now: time.Now}
}

// Create returns an error wrapping domain.ErrConflict when the record already has a response.
func (r *GormResponseRepo) Create(ctx context.Context, resp *domain.Response) error {
	model := responseModelFromDomain(resp)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateWriteError(err)
	}
	if resp != nil {
		*resp = *responseModelToDomain(model)
	}
	return nil
}

func (r *GormResponseRepo) ListByBatchAndRun(ctx context.Context, batchID, runNumber int64) ([]domain.Response, error) {
	var models []ResponseModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND run_number = ?", batchID, runNumber).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	responses := make([]domain.Response, 0, len(models))
	for i := range models {
		responses = append(responses, *responseModelToDomain(&models[i]))
	}
	return responses, nil
}

func (r *GormResponseRepo) ListPendingIdentifiers(ctx context.Context) ([]domain.ResponseIdentifier, error) {
	var rows []struct {
		BatchID   int64 `gorm:"column:batch_id"`
		RunNumber int64 `gorm:"column:run_number"`
	}
	err := r.db.WithContext(ctx).
		Model(&ResponseModel{}).
		Distinct("batch_id", "run_number").
		Where("status = ?", domain.ResponseStatusPending).
		Order("batch_id, run_number").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]domain.ResponseIdentifier, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, domain.ResponseIdentifier{BatchID: row.BatchID, RunNumber: row.RunNumber})
	}
	return ids, nil
}

func (r *GormResponseRepo) UpdateStatusForBatchRun(
	ctx context.Context,
	batchID, runNumber int64,
	status domain.ResponseStatus,
) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ResponseModel{}).
		Where("batch_id = ? AND run_number = ?", batchID, runNumber).
		Updates(map[string]any{
			"status":     status,
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
