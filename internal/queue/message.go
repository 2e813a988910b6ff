package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/claim-validation/internal/domain"
)

// RecordMessage asks a worker to validate one pending record.
type RecordMessage struct {
	EventID       string `json:"eventId"`
	CorrelationID string `json:"correlationId,omitempty"`
	ClientID      int64  `json:"clientId"`
	BatchID       int64  `json:"batchId"`
	RunNumber     int64  `json:"runNumber"`
	RecordID      int64  `json:"recordId"`
	ClaimNumber   string `json:"claimNumber"`
	Payload       string `json:"payload"`
}

func NewRecordMessage(clientID int64, record domain.Record) RecordMessage {
	return RecordMessage{
		EventID:     uuid.NewString(),
		ClientID:    clientID,
		BatchID:     record.BatchID,
		RunNumber:   record.RunNumber,
		RecordID:    record.ID,
		ClaimNumber: record.ClaimNumber,
		Payload:     record.Payload,
	}
}

func (m RecordMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if m.ClientID <= 0 {
		return fmt.Errorf("clientId must be positive")
	}
	if m.BatchID <= 0 {
		return fmt.Errorf("batchId must be positive")
	}
	if m.RecordID <= 0 {
		return fmt.Errorf("recordId must be positive")
	}
	if m.RunNumber < 0 {
		return fmt.Errorf("runNumber must not be negative")
	}
	return nil
}

func encodeRecordMessage(msg RecordMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record message: %w", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record message: %w", err)
	}
	return payload, nil
}

// decodeRecordMessage returns a permanent error for payloads no retry can fix.
func decodeRecordMessage(body []byte) (RecordMessage, error) {
	var msg RecordMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return RecordMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}
