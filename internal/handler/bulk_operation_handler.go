package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/middleware"
	"github.com/noah-isme/ems-program-api/internal/models"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
	"github.com/noah-isme/ems-program-api/pkg/response"
)

type bulkOperationService interface {
	Execute(ctx context.Context, req dto.BulkOperationRequest, actor dto.Actor) (*dto.BulkOperationResult, error)
	List(ctx context.Context, query dto.BulkOperationQuery) (*dto.BulkOperationHistory, error)
	Get(ctx context.Context, id string) (*models.BulkOperationLog, error)
	Rollback(ctx context.Context, id string, actor dto.Actor) (*dto.RollbackResult, error)
	Receipt(ctx context.Context, id string) (*dto.ExportFile, error)
	Tables() []dto.TargetTableInfo
}

// BulkOperationHandler exposes the bulk record operation endpoints.
type BulkOperationHandler struct {
	service bulkOperationService
}

// NewBulkOperationHandler constructs the handler.
func NewBulkOperationHandler(service bulkOperationService) *BulkOperationHandler {
	return &BulkOperationHandler{service: service}
}

// Execute godoc
// @Summary Preview or execute a bulk operation
// @Description With dry_run the matching rows are counted and previewed without changes. export_records answers with a file attachment.
// @Tags BulkOperations
// @Accept json
// @Produce json
// @Produce text/csv
// @Param payload body dto.BulkOperationRequest true "Bulk operation request"
// @Success 200 {object} dto.BulkOperationResult
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /bulk-operations [post]
func (h *BulkOperationHandler) Execute(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk operation payload"))
		return
	}
	result, err := h.service.Execute(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Export != nil {
		response.Attachment(c, result.Export.Filename, result.Export.ContentType, result.Export.Data, map[string]string{
			"X-Affected-Count": strconv.Itoa(result.Export.RowCount),
			"X-Operation-ID":   result.OperationID,
		})
		return
	}
	response.Payload(c, http.StatusOK, result)
}

// List godoc
// @Summary List bulk operation history
// @Tags BulkOperations
// @Produce json
// @Param table query string false "Target table"
// @Param operation query string false "Operation type"
// @Param status query string false "Comma separated statuses"
// @Param performed_by query string false "Actor id"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.BulkOperationHistory
// @Router /bulk-operations [get]
func (h *BulkOperationHandler) List(c *gin.Context) {
	query := dto.BulkOperationQuery{
		TargetTable:   models.TargetTable(strings.TrimSpace(c.Query("table"))),
		OperationType: models.BulkOperationType(strings.TrimSpace(c.Query("operation"))),
		PerformedBy:   strings.TrimSpace(c.Query("performed_by")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				query.Status = append(query.Status, models.BulkOperationStatus(part))
			}
		}
	}
	var err error
	if query.Limit, err = intQuery(c, "limit"); err != nil {
		response.Error(c, err)
		return
	}
	if query.Offset, err = intQuery(c, "offset"); err != nil {
		response.Error(c, err)
		return
	}

	history, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Payload(c, http.StatusOK, history)
}

// Get godoc
// @Summary Get a bulk operation log entry
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bulk-operations/{id} [get]
func (h *BulkOperationHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "rollbackable", entry.Rollbackable())
	response.JSON(c, http.StatusOK, entry, nil, middleware.ExtractMeta(c))
}

// Rollback godoc
// @Summary Roll back a completed bulk operation
// @Description Only update_status and assign_cohort operations are reversible, and only once.
// @Tags BulkOperations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} dto.RollbackResult
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bulk-operations/{id}/rollback [post]
func (h *BulkOperationHandler) Rollback(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Rollback(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Payload(c, http.StatusOK, result)
}

// Receipt godoc
// @Summary Download a PDF receipt for a bulk operation
// @Tags BulkOperations
// @Produce application/pdf
// @Param id path string true "Operation ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /bulk-operations/{id}/receipt [get]
func (h *BulkOperationHandler) Receipt(c *gin.Context) {
	file, err := h.service.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data, nil)
}

// Tables godoc
// @Summary Describe tables available to bulk operations
// @Tags BulkOperations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /bulk-operations/tables [get]
func (h *BulkOperationHandler) Tables(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Tables(), nil, middleware.ExtractMeta(c))
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a non-negative integer")
	}
	return value, nil
}
