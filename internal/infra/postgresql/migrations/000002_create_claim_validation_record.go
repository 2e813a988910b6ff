package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"gorm.io/gorm"
)

func createRecordTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_claim_validation_record",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RecordModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_claim_validation_record_batch_run_status ON claim_validation_record (batch_id, run_number, status)`,
				`CREATE INDEX IF NOT EXISTS idx_claim_validation_record_batch_run_updated ON claim_validation_record (batch_id, run_number, updated_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RecordModel{})
		},
	}
}
