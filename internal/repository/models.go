package repository

import (
	"time"

	"github.com/kursadbilgin/claim-validation/internal/domain"
)

// BatchModel is the persistence model for claim_validation_batch.
type BatchModel struct {
	ID                  int64              `gorm:"primaryKey;autoIncrement"`
	ClientID            int64              `gorm:"not null"`
	Filename            string             `gorm:"type:varchar(255);not null"`
	Status              domain.BatchStatus `gorm:"type:varchar(20);not null"`
	RunNumber           int64              `gorm:"not null;default:0"`
	GlobalControlNumber string             `gorm:"type:varchar(64)"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (BatchModel) TableName() string {
	return "claim_validation_batch"
}

// RecordModel is the persistence model for claim_validation_record.
type RecordModel struct {
	ID          int64               `gorm:"primaryKey;autoIncrement"`
	BatchID     int64               `gorm:"not null"`
	RunNumber   int64               `gorm:"not null;default:0"`
	Status      domain.RecordStatus `gorm:"type:varchar(20);not null"`
	ClaimNumber string              `gorm:"type:varchar(64);not null"`
	Payload     string              `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Batch *BatchModel `gorm:"foreignKey:BatchID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (RecordModel) TableName() string {
	return "claim_validation_record"
}

// ResponseModel is the persistence model for claim_validation_response.
type ResponseModel struct {
	ID          int64                 `gorm:"primaryKey;autoIncrement"`
	BatchID     int64                 `gorm:"not null"`
	RunNumber   int64                 `gorm:"not null"`
	Status      domain.ResponseStatus `gorm:"type:varchar(20);not null"`
	ClaimNumber string                `gorm:"type:varchar(64);not null"`
	Payload     string                `gorm:"type:text;not null"`
	RecordID    int64                 `gorm:"column:claim_validation_record_id;not null;uniqueIndex:idx_claim_validation_response_record_id"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Batch  *BatchModel  `gorm:"foreignKey:BatchID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Record *RecordModel `gorm:"foreignKey:RecordID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (ResponseModel) TableName() string {
	return "claim_validation_response"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}
	return &BatchModel{
		ID:                  b.ID,
		ClientID:            b.ClientID,
		Filename:            b.Filename,
		Status:              b.Status,
		RunNumber:           b.RunNumber,
		GlobalControlNumber: b.GlobalControlNumber,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}
	return &domain.Batch{
		ID:                  m.ID,
		ClientID:            m.ClientID,
		Filename:            m.Filename,
		Status:              m.Status,
		RunNumber:           m.RunNumber,
		GlobalControlNumber: m.GlobalControlNumber,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func recordModelFromDomain(r *domain.Record) *RecordModel {
	if r == nil {
		return nil
	}
	return &RecordModel{
		ID:          r.ID,
		BatchID:     r.BatchID,
		RunNumber:   r.RunNumber,
		Status:      r.Status,
		ClaimNumber: r.ClaimNumber,
		Payload:     r.Payload,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func recordModelToDomain(m *RecordModel) *domain.Record {
	if m == nil {
		return nil
	}
	return &domain.Record{
		ID:          m.ID,
		BatchID:     m.BatchID,
		RunNumber:   m.RunNumber,
		Status:      m.Status,
		ClaimNumber: m.ClaimNumber,
		Payload:     m.Payload,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func responseModelFromDomain(r *domain.Response) *ResponseModel {
	if r == nil {
		return nil
	}
	return &ResponseModel{
		ID:          r.ID,
		BatchID:     r.BatchID,
		RunNumber:   r.RunNumber,
		Status:      r.Status,
		ClaimNumber: r.ClaimNumber,
		Payload:     r.Payload,
		RecordID:    r.RecordID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func responseModelToDomain(m *ResponseModel) *domain.Response {
	if m == nil {
		return nil
	}
	return &domain.Response{
		ID:          m.ID,
		BatchID:     m.BatchID,
		RunNumber:   m.RunNumber,
		Status:      m.Status,
		ClaimNumber: m.ClaimNumber,
		Payload:     m.Payload,
		RecordID:    m.RecordID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
