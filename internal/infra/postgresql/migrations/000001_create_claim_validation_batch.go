package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"gorm.io/gorm"
)

func createBatchTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_claim_validation_batch",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_claim_validation_batch_status_created ON claim_validation_batch (status, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}
