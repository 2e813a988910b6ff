package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/claim-validation/internal/domain"
	"github.com/kursadbilgin/claim-validation/internal/service"
)

type BatchService interface {
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	GetRunSummary(ctx context.Context, batchID, runNumber int64) (*service.RunSummary, error)
	ListBatches(ctx context.Context, status domain.BatchStatus, limit int) ([]domain.Batch, error)
	ListRecords(ctx context.Context, batchID, runNumber int64, status domain.RecordStatus) ([]domain.Record, error)
	ListResponses(ctx context.Context, batchID, runNumber int64, status domain.ResponseStatus) ([]domain.Response, error)
	ListPendingResponseIdentifiers(ctx context.Context) ([]domain.ResponseIdentifier, error)
	CompleteResponses(ctx context.Context, batchID, runNumber int64) (int64, error)
	CompleteRun(ctx context.Context, batchID, runNumber int64) (*service.RunResult, error)
}

type BatchLoader interface {
	Load(ctx context.Context, batch *domain.Batch, records []*domain.Record) (*domain.Batch, error)
}

type BatchHandler struct {
	service BatchService
	loader  BatchLoader
}

func NewBatchHandler(service BatchService, loader BatchLoader) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("batch loader is required")
	}
	return &BatchHandler{service: service, loader: loader}, nil
}

func RegisterBatchRoutes(router fiber.Router, service BatchService, loader BatchLoader) error {
	h, err := NewBatchHandler(service, loader)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches", h.ListBatches)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Get("/batches/:id/runs/:run", h.GetRunSummary)
	v1.Get("/batches/:id/runs/:run/records", h.ListRecords)
	v1.Get("/batches/:id/runs/:run/responses", h.ListResponses)
	v1.Post("/batches/:id/runs/:run/complete", h.CompleteRun)
	v1.Post("/batches/:id/runs/:run/responses/complete", h.CompleteResponses)
	v1.Get("/responses/pending", h.ListPendingResponses)

	return nil
}

type createBatchRequest struct {
	ClientID            int64                 `json:"clientId"`
	Filename            string                `json:"filename"`
	GlobalControlNumber string                `json:"globalControlNumber"`
	Records             []createRecordRequest `json:"records"`
}

type createRecordRequest struct {
	ClaimNumber string          `json:"claimNumber"`
	Payload     json.RawMessage `json:"payload"`
}

type batchResponse struct {
	ID                  int64     `json:"id"`
	ClientID            int64     `json:"clientId"`
	Filename            string    `json:"filename"`
	Status              string    `json:"status"`
	RunNumber           int64     `json:"runNumber"`
	GlobalControlNumber string    `json:"globalControlNumber,omitempty"`
	CreatedAt           time.Time `json:"createdAt,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

type runSummaryResponse struct {
	BatchID   int64             `json:"batchId"`
	RunNumber int64             `json:"runNumber"`
	Total     int64             `json:"total"`
	Counts    []statusCountItem `json:"counts"`
}

type statusCountItem struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type recordItem struct {
	ID          int64     `json:"id"`
	BatchID     int64     `json:"batchId"`
	RunNumber   int64     `json:"runNumber"`
	ClaimNumber string    `json:"claimNumber"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type responseItem struct {
	ID          int64     `json:"id"`
	BatchID     int64     `json:"batchId"`
	RunNumber   int64     `json:"runNumber"`
	RecordID    int64     `json:"recordId"`
	ClaimNumber string    `json:"claimNumber"`
	Status      string    `json:"status"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type runResultResponse struct {
	BatchID           int64  `json:"batchId"`
	PreviousRunNumber int64  `json:"previousRunNumber"`
	RunNumber         int64  `json:"runNumber"`
	Status            string `json:"status"`
	Outcome           string `json:"outcome"`
	CompletedCount    int64  `json:"completedCount"`
	MovedCount        int64  `json:"movedCount"`
}

type responseIdentifierItem struct {
	BatchID   int64 `json:"batchId"`
	RunNumber int64 `json:"runNumber"`
}

// summaryStatuses fixes the order of the counts array.
var summaryStatuses = []domain.RecordStatus{
	domain.RecordStatusPending,
	domain.RecordStatusComplete,
	domain.RecordStatusIncomplete,
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Records) == 0 {
		return toHTTPError(fmt.Errorf("%w: records is required", domain.ErrValidation))
	}

	batch := &domain.Batch{
		ClientID:            req.ClientID,
		Filename:            strings.TrimSpace(req.Filename),
		GlobalControlNumber: strings.TrimSpace(req.GlobalControlNumber),
	}
	records := make([]*domain.Record, 0, len(req.Records))
	for _, item := range req.Records {
		records = append(records, &domain.Record{
			ClaimNumber: strings.TrimSpace(item.ClaimNumber),
			Payload:     strings.TrimSpace(string(item.Payload)),
		})
	}

	created, err := h.loader.Load(c.UserContext(), batch, records)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(created))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.service.GetBatch(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetRunSummary(c *fiber.Ctx) error {
	id, run, err := batchRunParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	summary, err := h.service.GetRunSummary(c.UserContext(), id, run)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]statusCountItem, 0, len(summaryStatuses))
	for _, status := range summaryStatuses {
		items = append(items, statusCountItem{Status: status.String(), Count: summary.Counts[status]})
	}

	return c.Status(fiber.StatusOK).JSON(runSummaryResponse{
		BatchID:   summary.BatchID,
		RunNumber: summary.RunNumber,
		Total:     summary.Total,
		Counts:    items,
	})
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	status, err := domain.ParseBatchStatusFromString(c.Query("status"))
	if err != nil {
		return toHTTPError(err)
	}
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return toHTTPError(fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrValidation))
		}
	}

	batches, err := h.service.ListBatches(c.UserContext(), status, limit)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]batchResponse, 0, len(batches))
	for i := range batches {
		items = append(items, toBatchResponse(&batches[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func (h *BatchHandler) ListRecords(c *fiber.Ctx) error {
	id, run, err := batchRunParams(c)
	if err != nil {
		return toHTTPError(err)
	}
	var status domain.RecordStatus
	if raw := c.Query("status"); raw != "" {
		if status, err = domain.ParseRecordStatusFromString(raw); err != nil {
			return toHTTPError(err)
		}
	}

	records, err := h.service.ListRecords(c.UserContext(), id, run, status)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]recordItem, 0, len(records))
	for _, r := range records {
		items = append(items, recordItem{
			ID:          r.ID,
			BatchID:     r.BatchID,
			RunNumber:   r.RunNumber,
			ClaimNumber: r.ClaimNumber,
			Status:      r.Status.String(),
			UpdatedAt:   r.UpdatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func (h *BatchHandler) ListResponses(c *fiber.Ctx) error {
	id, run, err := batchRunParams(c)
	if err != nil {
		return toHTTPError(err)
	}
	var status domain.ResponseStatus
	if raw := c.Query("status"); raw != "" {
		if status, err = domain.ParseResponseStatusFromString(raw); err != nil {
			return toHTTPError(err)
		}
	}

	responses, err := h.service.ListResponses(c.UserContext(), id, run, status)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]responseItem, 0, len(responses))
	for _, r := range responses {
		items = append(items, responseItem{
			ID:          r.ID,
			BatchID:     r.BatchID,
			RunNumber:   r.RunNumber,
			RecordID:    r.RecordID,
			ClaimNumber: r.ClaimNumber,
			Status:      r.Status.String(),
			Payload:     r.Payload,
			CreatedAt:   r.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func (h *BatchHandler) CompleteRun(c *fiber.Ctx) error {
	id, run, err := batchRunParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.CompleteRun(c.UserContext(), id, run)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(runResultResponse{
		BatchID:           result.BatchID,
		PreviousRunNumber: result.PreviousRun,
		RunNumber:         result.NextRun,
		Status:            result.Status.String(),
		Outcome:           result.Outcome(),
		CompletedCount:    result.CompletedCount,
		MovedCount:        result.MovedCount,
	})
}

func (h *BatchHandler) CompleteResponses(c *fiber.Ctx) error {
	id, run, err := batchRunParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	n, err := h.service.CompleteResponses(c.UserContext(), id, run)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"batchId":   id,
		"runNumber": run,
		"completed": n,
	})
}

func (h *BatchHandler) ListPendingResponses(c *fiber.Ctx) error {
	ids, err := h.service.ListPendingResponseIdentifiers(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]responseIdentifierItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, responseIdentifierItem{BatchID: id.BatchID, RunNumber: id.RunNumber})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func batchRunParams(c *fiber.Ctx) (int64, int64, error) {
	id, err := int64Param(c, "id")
	if err != nil {
		return 0, 0, err
	}
	run, err := int64Param(c, "run")
	if err != nil {
		return 0, 0, err
	}
	return id, run, nil
}

func int64Param(c *fiber.Ctx, name string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
	}
	return value, nil
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	return batchResponse{
		ID:                  b.ID,
		ClientID:            b.ClientID,
		Filename:            b.Filename,
		Status:              b.Status.String(),
		RunNumber:           b.RunNumber,
		GlobalControlNumber: b.GlobalControlNumber,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
