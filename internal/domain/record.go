package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecordStatus represents the validation state of a single claim record.
type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "PENDING"
	RecordStatusComplete   RecordStatus = "COMPLETE"
	RecordStatusIncomplete RecordStatus = "INCOMPLETE"
)

func (s RecordStatus) String() string { return string(s) }

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusPending, RecordStatusComplete, RecordStatusIncomplete:
		return true
	}
	return false
}

func ParseRecordStatusFromString(s string) (RecordStatus, error) {
	st := RecordStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid record status %q", ErrValidation, s)
	}
	return st, nil
}

// Record is one claim line inside a batch.
type Record struct {
	ID          int64
	BatchID     int64
	RunNumber   int64
	Status      RecordStatus
	ClaimNumber string
	Payload     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *Record) Validate() error {
	if strings.TrimSpace(r.ClaimNumber) == "" {
		return fmt.Errorf("%w: claimNumber is required", ErrValidation)
	}
	if r.Payload == "" {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if r.RunNumber < 0 {
		return fmt.Errorf("%w: runNumber must not be negative", ErrValidation)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid record status %q", ErrValidation, r.Status)
	}
	return nil
}
