package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/observability"
)

const defaultValidatorTimeout = 10 * time.Second

type validateRequest struct {
	BatchID     int64  `json:"batchId"`
	RunNumber   int64  `json:"runNumber"`
	RecordID    int64  `json:"recordId"`
	ClaimNumber string `json:"claimNumber"`
	Payload     string `json:"payload"`
}

// HTTPValidator posts records to a claim validation endpoint and returns the
// response body verbatim.
type HTTPValidator struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPValidator(endpoint string, timeout time.Duration) (*HTTPValidator, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultValidatorTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewHTTPValidatorWithClient(endpoint, client)
}

func NewHTTPValidatorWithClient(endpoint string, client *resty.Client) (*HTTPValidator, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("validator endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid validator endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultValidatorTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPValidator{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (v *HTTPValidator) Validate(ctx context.Context, record domain.Record) (string, error) {
	if v == nil || v.client == nil {
		return "", fmt.Errorf("validator is not initialized")
	}
	if err := record.Validate(); err != nil {
		return "", &ValidatorError{Message: "invalid record", Cause: err}
	}

	req := v.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(validateRequest{
			BatchID:     record.BatchID,
			RunNumber:   record.RunNumber,
			RecordID:    record.ID,
			ClaimNumber: record.ClaimNumber,
			Payload:     record.Payload,
		})
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		req.SetHeader(observability.CorrelationIDHeader, correlationID)
	}

	response, err := req.Post(v.endpoint)
	if err != nil {
		return "", &ValidatorError{
			Message:   "validator request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		if body == "" {
			return "", &ValidatorError{
				StatusCode: statusCode,
				Message:    "validator returned an empty response document",
			}
		}
		return body, nil
	}

	return "", &ValidatorError{
		StatusCode: statusCode,
		Message:    errorMessage(statusCode, body),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func errorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("validator returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
