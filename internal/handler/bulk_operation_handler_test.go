package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/middleware"
	"github.com/noah-isme/ems-program-api/internal/models"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
)

type bulkServiceMock struct {
	executeResp *dto.BulkOperationResult
	executeErr  error
	lastRequest dto.BulkOperationRequest
	lastActor   dto.Actor
	historyResp *dto.BulkOperationHistory
	lastQuery   dto.BulkOperationQuery
	getResp     *models.BulkOperationLog
	getErr      error
	rollbackErr error
	receipt     *dto.ExportFile
}

func (m *bulkServiceMock) Execute(ctx context.Context, req dto.BulkOperationRequest, actor dto.Actor) (*dto.BulkOperationResult, error) {
	m.lastRequest = req
	m.lastActor = actor
	return m.executeResp, m.executeErr
}

func (m *bulkServiceMock) List(ctx context.Context, query dto.BulkOperationQuery) (*dto.BulkOperationHistory, error) {
	m.lastQuery = query
	return m.historyResp, nil
}

func (m *bulkServiceMock) Get(ctx context.Context, id string) (*models.BulkOperationLog, error) {
	return m.getResp, m.getErr
}

func (m *bulkServiceMock) Rollback(ctx context.Context, id string, actor dto.Actor) (*dto.RollbackResult, error) {
	m.lastActor = actor
	if m.rollbackErr != nil {
		return nil, m.rollbackErr
	}
	return &dto.RollbackResult{Success: true, OperationID: id, RestoredCount: 3, Message: "restored 3 of 3 students record(s)"}, nil
}

func (m *bulkServiceMock) Receipt(ctx context.Context, id string) (*dto.ExportFile, error) {
	return m.receipt, nil
}

func (m *bulkServiceMock) Tables() []dto.TargetTableInfo {
	return []dto.TargetTableInfo{{Name: models.TableStudents, PrimaryKey: "id"}}
}

func newBulkContext(method, target string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c, w
}

func TestBulkOperationHandlerExecutePreview(t *testing.T) {
	total := 3
	svc := &bulkServiceMock{executeResp: &dto.BulkOperationResult{
		Success:       true,
		DryRun:        true,
		TotalMatching: &total,
		Preview:       []models.Row{{"id": "s-1", "status": "withdrawn"}},
	}}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodPost, "/bulk-operations", `{
		"operation": "update_status",
		"target_table": "students",
		"filters": [{"field": "status", "operator": "equals", "value": "withdrawn"}],
		"parameters": {"new_status": "inactive"},
		"dry_run": true
	}`)
	handler.Execute(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.lastActor.ID)
	assert.True(t, svc.lastRequest.DryRun)
	assert.JSONEq(t, `{"new_status": "inactive"}`, string(svc.lastRequest.Parameters))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["total_matching"])
	assert.Len(t, body["preview"], 1)
	assert.NotContains(t, body, "affected_count")
}

func TestBulkOperationHandlerExecuteExportAttachment(t *testing.T) {
	count := 2
	svc := &bulkServiceMock{executeResp: &dto.BulkOperationResult{
		Success:       true,
		OperationID:   "op-7",
		AffectedCount: &count,
		Export: &dto.ExportFile{
			Filename:    "students_export_20260301_090000.csv",
			ContentType: "text/csv; charset=utf-8",
			Data:        []byte("id\ns-1\ns-2\n"),
			RowCount:    2,
		},
	}}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodPost, "/bulk-operations", `{"operation":"export_records","target_table":"students","parameters":{"format":"csv"}}`)
	handler.Execute(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="students_export_20260301_090000.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", w.Header().Get("X-Affected-Count"))
	assert.Equal(t, "op-7", w.Header().Get("X-Operation-ID"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "id\ns-1\ns-2\n", w.Body.String())
}

func TestBulkOperationHandlerExecuteErrors(t *testing.T) {
	svc := &bulkServiceMock{executeErr: appErrors.Clone(appErrors.ErrUnknownField, `unknown field "nonexistent_column" for table students`)}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodPost, "/bulk-operations", `{"operation":"update_status","target_table":"students"}`)
	handler.Execute(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_FIELD")

	c, w = newBulkContext(http.MethodPost, "/bulk-operations", `{"operation":`)
	handler.Execute(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	svc.executeErr = appErrors.Wrap(errors.New("connection reset"), appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, appErrors.ErrStorageFailure.Message)
	c, w = newBulkContext(http.MethodPost, "/bulk-operations", `{"operation":"update_status","target_table":"students"}`)
	handler.Execute(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestBulkOperationHandlerRequiresActor(t *testing.T) {
	handler := NewBulkOperationHandler(&bulkServiceMock{})
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/bulk-operations/op-1/rollback", nil)

	handler.Rollback(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBulkOperationHandlerList(t *testing.T) {
	svc := &bulkServiceMock{historyResp: &dto.BulkOperationHistory{
		Success:    true,
		Operations: []models.BulkOperationLog{{ID: "op-1", Status: models.BulkStatusCompleted}},
	}}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodGet, "/bulk-operations?table=students&status=completed,%20Rolled_Back&limit=10", "")
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TableStudents, svc.lastQuery.TargetTable)
	assert.Equal(t, []models.BulkOperationStatus{models.BulkStatusCompleted, models.BulkStatusRolledBack}, svc.lastQuery.Status)
	assert.Equal(t, 10, svc.lastQuery.Limit)

	var body dto.BulkOperationHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Operations, 1)

	c, w = newBulkContext(http.MethodGet, "/bulk-operations?limit=abc", "")
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkOperationHandlerRollback(t *testing.T) {
	svc := &bulkServiceMock{}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodPost, "/bulk-operations/op-1/rollback", "")
	c.Params = gin.Params{{Key: "id", Value: "op-1"}}
	handler.Rollback(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body dto.RollbackResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.RestoredCount)

	svc.rollbackErr = appErrors.ErrAlreadyRolledBack
	c, w = newBulkContext(http.MethodPost, "/bulk-operations/op-1/rollback", "")
	c.Params = gin.Params{{Key: "id", Value: "op-1"}}
	handler.Rollback(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_ROLLED_BACK")
}

func TestBulkOperationHandlerGetAndReceipt(t *testing.T) {
	svc := &bulkServiceMock{
		getErr:  appErrors.Clone(appErrors.ErrNotFound, "bulk operation not found"),
		receipt: &dto.ExportFile{Filename: "bulk_operation_op-1.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")},
	}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodGet, "/bulk-operations/op-1", "")
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newBulkContext(http.MethodGet, "/bulk-operations/op-1/receipt", "")
	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bulk_operation_op-1.pdf")
}

func TestBulkOperationHandlerGetReportsRollbackable(t *testing.T) {
	svc := &bulkServiceMock{getResp: &models.BulkOperationLog{
		ID:            "op-1",
		OperationType: models.BulkOperationAssignCohort,
		TargetTable:   models.TableStudents,
		Status:        models.BulkStatusCompleted,
	}}
	handler := NewBulkOperationHandler(svc)

	c, w := newBulkContext(http.MethodGet, "/bulk-operations/op-1", "")
	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rollbackable":true`)
	assert.Contains(t, w.Body.String(), `"id":"op-1"`)
}

func TestBulkOperationHandlerTables(t *testing.T) {
	handler := NewBulkOperationHandler(&bulkServiceMock{})
	c, w := newBulkContext(http.MethodGet, "/bulk-operations/tables", "")
	handler.Tables(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"students"`)
}
