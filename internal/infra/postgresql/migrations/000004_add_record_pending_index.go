package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addRecordPendingIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_add_record_pending_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_claim_validation_record_pending ON claim_validation_record (batch_id, run_number) WHERE status = 'PENDING'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_claim_validation_record_pending`).Error
		},
	}
}
