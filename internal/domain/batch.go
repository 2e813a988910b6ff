package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the processing state of a claim batch.
type BatchStatus string

const (
	BatchStatusLoading    BatchStatus = "LOADING"
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusComplete   BatchStatus = "COMPLETE"
	BatchStatusError      BatchStatus = "ERROR"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusLoading, BatchStatusPending, BatchStatusProcessing, BatchStatusComplete, BatchStatusError:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// Batch is one ingested claim file tracked through successive validation runs.
type Batch struct {
	ID                  int64
	ClientID            int64
	Filename            string
	Status              BatchStatus
	RunNumber           int64
	GlobalControlNumber string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (b *Batch) Validate() error {
	if b.ClientID <= 0 {
		return fmt.Errorf("%w: clientId must be positive", ErrValidation)
	}
	if strings.TrimSpace(b.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if b.RunNumber < 0 {
		return fmt.Errorf("%w: runNumber must not be negative", ErrValidation)
	}
	if b.Status != "" && !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	return nil
}

// IsTerminal reports whether no further runs will be scheduled for the batch.
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchStatusComplete || b.Status == BatchStatusError
}
