package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"gorm.io/gorm"
)

func createResponseTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_claim_validation_response",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ResponseModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_claim_validation_response_batch_run_status ON claim_validation_response (batch_id, run_number, status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ResponseModel{})
		},
	}
}
