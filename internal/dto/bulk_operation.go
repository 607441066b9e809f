package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/ems-program-api/internal/models"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
)

// Actor is the authenticated caller, resolved from token claims by the transport layer.
type Actor struct {
	ID   string
	Role models.UserRole
}

// BulkOperationRequest is the POST /bulk-operations payload.
type BulkOperationRequest struct {
	Operation   models.BulkOperationType `json:"operation" validate:"required,oneof=update_status assign_cohort delete_records export_records"`
	TargetTable models.TargetTable       `json:"target_table" validate:"required"`
	Filters     []models.FilterCondition `json:"filters" validate:"dive"`
	Parameters  json.RawMessage          `json:"parameters"`
	DryRun      bool                     `json:"dry_run"`
}

// OperationParams is the per-operation parameter set. Exactly one concrete type exists per operation.
type OperationParams interface {
	Operation() models.BulkOperationType
}

// UpdateStatusParams sets the table status column on every matched row.
type UpdateStatusParams struct {
	NewStatus string `json:"new_status"`
}

// Operation implements OperationParams.
func (UpdateStatusParams) Operation() models.BulkOperationType {
	return models.BulkOperationUpdateStatus
}

// AssignCohortParams moves every matched row to a cohort.
type AssignCohortParams struct {
	CohortID string `json:"cohort_id"`
}

// Operation implements OperationParams.
func (AssignCohortParams) Operation() models.BulkOperationType {
	return models.BulkOperationAssignCohort
}

// DeleteParams carries the explicit confirmation required to delete rows.
type DeleteParams struct {
	Confirmed bool `json:"confirmed"`
}

// UnmarshalJSON accepts confirmed as a JSON boolean or as its string form ("true", "false").
func (p *DeleteParams) UnmarshalJSON(data []byte) error {
	var raw struct {
		Confirmed json.RawMessage `json:"confirmed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value := bytes.TrimSpace(raw.Confirmed)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		p.Confirmed = false
		return nil
	}
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		value = []byte(strings.TrimSpace(text))
	}
	confirmed, err := strconv.ParseBool(string(value))
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "parameters.confirmed must be a boolean")
	}
	p.Confirmed = confirmed
	return nil
}

// Operation implements OperationParams.
func (DeleteParams) Operation() models.BulkOperationType {
	return models.BulkOperationDeleteRecords
}

// ExportFormat names a serialisation for export_records.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ExportParams selects the export serialisation.
type ExportParams struct {
	Format ExportFormat `json:"format"`
}

// Operation implements OperationParams.
func (ExportParams) Operation() models.BulkOperationType {
	return models.BulkOperationExportRecords
}

// DecodeOperationParams parses raw parameters into the concrete type for op and checks required members.
// Delete confirmation is not checked here; previews of a delete do not need it.
func DecodeOperationParams(op models.BulkOperationType, raw json.RawMessage) (OperationParams, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	switch op {
	case models.BulkOperationUpdateStatus:
		var params UpdateStatusParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		params.NewStatus = strings.TrimSpace(params.NewStatus)
		if params.NewStatus == "" {
			return nil, appErrors.Clone(appErrors.ErrMissingParameter, "parameters.new_status is required")
		}
		return params, nil
	case models.BulkOperationAssignCohort:
		var params AssignCohortParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		params.CohortID = strings.TrimSpace(params.CohortID)
		if params.CohortID == "" {
			return nil, appErrors.Clone(appErrors.ErrMissingParameter, "parameters.cohort_id is required")
		}
		cohortID, err := uuid.Parse(params.CohortID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrMissingParameter, "parameters.cohort_id must be a uuid")
		}
		params.CohortID = cohortID.String()
		return params, nil
	case models.BulkOperationDeleteRecords:
		var params DeleteParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return params, nil
	case models.BulkOperationExportRecords:
		var params ExportParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		params.Format = ExportFormat(strings.ToLower(strings.TrimSpace(string(params.Format))))
		switch params.Format {
		case ExportFormatCSV, ExportFormatJSON:
		case "":
			return nil, appErrors.Clone(appErrors.ErrMissingParameter, "parameters.format is required")
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "parameters.format must be csv or json")
		}
		return params, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported operation %q", op))
	}
}

func decodeParams(raw json.RawMessage, dest interface{}) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Clone(appErrors.ErrValidation, "invalid operation parameters")
	}
	return nil
}

// BulkOperationResult answers POST /bulk-operations for previews and mutations.
type BulkOperationResult struct {
	Success       bool         `json:"success"`
	DryRun        bool         `json:"dry_run"`
	OperationID   string       `json:"operation_id,omitempty"`
	TotalMatching *int         `json:"total_matching,omitempty"`
	Preview       []models.Row `json:"preview,omitempty"`
	AffectedCount *int         `json:"affected_count,omitempty"`
	Message       string       `json:"message,omitempty"`
	Export        *ExportFile  `json:"-"`
}

// ExportFile is the serialised payload of export_records, sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	RowCount    int
}

// RollbackResult answers POST /bulk-operations/{id}/rollback.
type RollbackResult struct {
	Success       bool   `json:"success"`
	OperationID   string `json:"operation_id"`
	RestoredCount int    `json:"restored_count"`
	Message       string `json:"message"`
}

// BulkOperationHistory answers GET /bulk-operations.
type BulkOperationHistory struct {
	Success    bool                      `json:"success"`
	Operations []models.BulkOperationLog `json:"operations"`
	Pagination *models.Pagination        `json:"pagination,omitempty"`
}

// BulkOperationQuery mirrors supported history filters.
type BulkOperationQuery struct {
	TargetTable   models.TargetTable
	OperationType models.BulkOperationType
	Status        []models.BulkOperationStatus
	PerformedBy   string
	Limit         int
	Offset        int
}

// TargetTableInfo describes a table to the filter builder.
type TargetTableInfo struct {
	Name       models.TargetTable         `json:"name"`
	PrimaryKey string                     `json:"primary_key"`
	Fields     []TargetFieldInfo          `json:"fields"`
	Operations []models.BulkOperationType `json:"operations"`
}

// TargetFieldInfo describes a filterable column.
type TargetFieldInfo struct {
	Name      string                  `json:"name"`
	Type      models.FieldType        `json:"type"`
	Operators []models.FilterOperator `json:"operators"`
}
