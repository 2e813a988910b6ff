package domain

import (
	"fmt"
	"strings"
	"time"
)

// ResponseStatus tracks whether a validation outcome has been written out.
type ResponseStatus string

const (
	ResponseStatusPending  ResponseStatus = "PENDING"
	ResponseStatusComplete ResponseStatus = "COMPLETE"
)

func (s ResponseStatus) String() string { return string(s) }

func (s ResponseStatus) IsValid() bool {
	switch s {
	case ResponseStatusPending, ResponseStatusComplete:
		return true
	}
	return false
}

func ParseResponseStatusFromString(s string) (ResponseStatus, error) {
	st := ResponseStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid response status %q", ErrValidation, s)
	}
	return st, nil
}

// Response is the persisted outcome of validating one record.
type Response struct {
	ID          int64
	BatchID     int64
	RunNumber   int64
	Status      ResponseStatus
	ClaimNumber string
	Payload     string
	RecordID    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPendingResponse builds the response for a record that has just been validated.
func NewPendingResponse(payload string, record *Record) *Response {
	return &Response{
		BatchID:     record.BatchID,
		RunNumber:   record.RunNumber,
		Status:      ResponseStatusPending,
		ClaimNumber: record.ClaimNumber,
		Payload:     payload,
		RecordID:    record.ID,
	}
}

// ResponseIdentifier names a (batch, run) pair that still has unwritten responses.
type ResponseIdentifier struct {
	BatchID   int64
	RunNumber int64
}
