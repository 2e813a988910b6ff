package validator

import (
	"context"

	"github.com/kursadbilgin/claim-validation/internal/domain"
)

// Validator is the outbound port to the external claim validation engine. It
// returns the response document to persist for the record.
type Validator interface {
	Validate(ctx context.Context, record domain.Record) (string, error)
}
