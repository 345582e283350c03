package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/middleware"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/worker"
)

const (
	defaultFailureLimit = 100
	maxFailureLimit     = 1000

	// TriggerAPI marks reconciliation runs requested over HTTP
	TriggerAPI = "api"
)

// SyncAdmin is the sync administration service behind the handler
type SyncAdmin interface {
	ListFailures(ctx context.Context, filter domain.FailureFilter) ([]domain.FailureRecord, error)
	ClearFailures(ctx context.Context) (int, error)
	RetryFailures(ctx context.Context, filter domain.FailureFilter) (domain.RetryResult, error)
	Retry(ctx context.Context, collection, sharedID string) error
	Status(ctx context.Context, collection, sharedID string) (*domain.SyncStatusReport, error)
	Metrics(ctx context.Context) (*domain.SyncMetrics, error)
	Reconcile(ctx context.Context, opts domain.ReconcileOptions) (domain.ReconcileReport, error)
	Batch(ctx context.Context, ops []domain.BatchOperation) (domain.BatchResult, error)
}

// SyncHandler handles the sync administration endpoints
type SyncHandler struct {
	admin     SyncAdmin
	queue     worker.Enqueuer
	queueName string
	logger    *zap.Logger
}

// NewSyncHandler creates a new sync handler. queue is optional; without it
// asynchronous reconciliation requests are rejected.
func NewSyncHandler(admin SyncAdmin, queue worker.Enqueuer, queueName string, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		admin:     admin,
		queue:     queue,
		queueName: queueName,
		logger:    logger,
	}
}

type retryFailuresRequest struct {
	Collection string           `json:"collection"`
	SharedID   string           `json:"sharedId"`
	Operation  domain.Operation `json:"operation"`
}

type reconcileRequest struct {
	Force    bool     `json:"force"`
	Entities []string `json:"entities"`
}

type batchRequest struct {
	Operations []domain.BatchOperation `json:"operations"`
}

// ListFailures handles GET /api/v1/sync/failures
func (h *SyncHandler) ListFailures(c *fiber.Ctx) error {
	limit := parseQueryInt(c, "limit", defaultFailureLimit)
	if limit <= 0 {
		limit = defaultFailureLimit
	}
	if limit > maxFailureLimit {
		limit = maxFailureLimit
	}

	filter := domain.FailureFilter{
		Collection: c.Query("collection"),
		SharedID:   c.Query("sharedId"),
		Operation:  domain.Operation(c.Query("operation")),
		Limit:      limit,
	}

	records, err := h.admin.ListFailures(c.UserContext(), filter)
	if err != nil {
		h.logger.Error("failed to list sync failures", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list sync failures")
	}
	if records == nil {
		records = []domain.FailureRecord{}
	}

	return c.JSON(fiber.Map{
		"data":       records,
		"totalCount": len(records),
	})
}

// ClearFailures handles DELETE /api/v1/sync/failures
func (h *SyncHandler) ClearFailures(c *fiber.Ctx) error {
	n, err := h.admin.ClearFailures(c.UserContext())
	if err != nil {
		h.logger.Error("failed to clear sync failures", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to clear sync failures")
	}

	h.logger.Info("sync failures cleared over api",
		zap.Int("count", n),
		zap.String("request_id", middleware.GetRequestID(c)),
	)
	return c.JSON(fiber.Map{"cleared": n})
}

// RetryFailures handles POST /api/v1/sync/failures/retry
func (h *SyncHandler) RetryFailures(c *fiber.Ctx) error {
	var req retryFailuresRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid request body: "+err.Error())
		}
	}

	result, err := h.admin.RetryFailures(c.UserContext(), domain.FailureFilter{
		Collection: req.Collection,
		SharedID:   req.SharedID,
		Operation:  req.Operation,
	})
	if err != nil {
		h.logger.Error("failed to retry sync failures", zap.Error(err))
		return appErrorResponse(c, err)
	}
	return c.JSON(result)
}

// GetRecordStatus handles GET /api/v1/sync/records/:collection/:id
func (h *SyncHandler) GetRecordStatus(c *fiber.Ctx) error {
	report, err := h.admin.Status(c.UserContext(), c.Params("collection"), c.Params("id"))
	if err != nil {
		if !apperrors.IsAppError(err) {
			h.logger.Error("failed to get sync status", zap.Error(err))
		}
		return appErrorResponse(c, err)
	}
	if !report.InPrimary && !report.InSecondary {
		return errorResponse(c, fiber.StatusNotFound, "Record not found in either store")
	}
	return c.JSON(report)
}

// RetryRecord handles POST /api/v1/sync/records/:collection/:id/retry
func (h *SyncHandler) RetryRecord(c *fiber.Ctx) error {
	collection, id := c.Params("collection"), c.Params("id")
	if err := h.admin.Retry(c.UserContext(), collection, id); err != nil {
		h.logger.Warn("manual sync retry failed",
			zap.String("collection", collection),
			zap.String("shared_id", id),
			zap.Error(err),
		)
		return appErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"collection": collection,
		"sharedId":   id,
		"status":     domain.SyncStatusSynced,
	})
}

// Metrics handles GET /api/v1/sync/metrics
func (h *SyncHandler) Metrics(c *fiber.Ctx) error {
	m, err := h.admin.Metrics(c.UserContext())
	if err != nil {
		h.logger.Error("failed to get sync metrics", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to get sync metrics")
	}
	return c.JSON(m)
}

// Reconcile handles POST /api/v1/sync/reconcile. With ?async=true the pass
// is queued for the worker instead of run in the request.
func (h *SyncHandler) Reconcile(c *fiber.Ctx) error {
	var req reconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid request body: "+err.Error())
		}
	}
	if force, err := strconv.ParseBool(c.Query("force")); err == nil {
		req.Force = req.Force || force
	}

	if c.QueryBool("async") {
		if h.queue == nil {
			return errorResponse(c, fiber.StatusServiceUnavailable, "Background queue is not configured")
		}
		info, err := worker.EnqueueReconcile(c.UserContext(), h.queue, h.queueName, &worker.ReconcilePayload{
			Force:    req.Force,
			Entities: req.Entities,
			Trigger:  TriggerAPI,
		})
		if err != nil {
			h.logger.Error("failed to enqueue reconciliation", zap.Error(err))
			return errorResponse(c, fiber.StatusServiceUnavailable, "Failed to enqueue reconciliation")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"taskId": info.ID,
			"queue":  info.Queue,
		})
	}

	report, err := h.admin.Reconcile(c.UserContext(), domain.ReconcileOptions{
		Force:    req.Force,
		Entities: req.Entities,
		Trigger:  TriggerAPI,
	})
	if err != nil {
		if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Code == apperrors.CodeDualWriteFailed {
			return c.Status(appErr.StatusCode).JSON(fiber.Map{
				"error":   errorName(appErr.StatusCode),
				"code":    appErr.Code,
				"message": appErr.Message,
				"report":  report,
			})
		}
		return appErrorResponse(c, err)
	}
	return c.JSON(report)
}

// Batch handles POST /api/v1/sync/batch. Partial success answers 207.
func (h *SyncHandler) Batch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	result, err := h.admin.Batch(c.UserContext(), req.Operations)
	if err != nil {
		return appErrorResponse(c, err)
	}

	status := fiber.StatusOK
	if !result.OK() {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(result)
}

// RegisterRoutes registers the sync routes. limit guards the operations
// that write to the stores or the failure ledger. guards run before every
// route of the group.
//
// The routes carry no authentication of their own: batch writes both
// stores and DELETE /failures wipes the ledger. Serve them on an internal
// network only, or pass an authenticating handler in guards.
func (h *SyncHandler) RegisterRoutes(router fiber.Router, limit fiber.Handler, guards ...fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	g := router.Group("/api/v1/sync", guards...)

	g.Get("/failures", h.ListFailures)
	g.Delete("/failures", limit, h.ClearFailures)
	g.Post("/failures/retry", limit, h.RetryFailures)
	g.Post("/reconcile", limit, h.Reconcile)
	g.Get("/metrics", h.Metrics)
	g.Get("/records/:collection/:id", h.GetRecordStatus)
	g.Post("/records/:collection/:id/retry", limit, h.RetryRecord)
	g.Post("/batch", limit, h.Batch)
}
