package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// BulkOperationType enumerates supported bulk operations.
type BulkOperationType string

const (
	BulkOperationUpdateStatus  BulkOperationType = "update_status"
	BulkOperationAssignCohort  BulkOperationType = "assign_cohort"
	BulkOperationDeleteRecords BulkOperationType = "delete_records"
	BulkOperationExportRecords BulkOperationType = "export_records"
)

// BulkOperationTypes lists every operation in display order.
var BulkOperationTypes = []BulkOperationType{
	BulkOperationUpdateStatus,
	BulkOperationAssignCohort,
	BulkOperationDeleteRecords,
	BulkOperationExportRecords,
}

// Reversible reports whether a completed operation of this type may be rolled back.
// Deletes are permanent even though their rows are snapshotted for audit.
func (t BulkOperationType) Reversible() bool {
	return t == BulkOperationUpdateStatus || t == BulkOperationAssignCohort
}

// BulkOperationStatus captures the log entry lifecycle.
type BulkOperationStatus string

const (
	BulkStatusPending    BulkOperationStatus = "pending"
	BulkStatusRunning    BulkOperationStatus = "running"
	BulkStatusCompleted  BulkOperationStatus = "completed"
	BulkStatusFailed     BulkOperationStatus = "failed"
	BulkStatusRolledBack BulkOperationStatus = "rolled_back"
)

// BulkOperationLog is the append-mostly record of an executed bulk operation.
type BulkOperationLog struct {
	ID            string              `db:"id" json:"id"`
	OperationType BulkOperationType   `db:"operation_type" json:"operation_type"`
	TargetTable   TargetTable         `db:"target_table" json:"target_table"`
	Filters       types.JSONText      `db:"filters" json:"filters"`
	Parameters    types.JSONText      `db:"parameters" json:"parameters"`
	AffectedCount int                 `db:"affected_count" json:"affected_count"`
	BeforeState   *types.JSONText     `db:"before_state" json:"before_state,omitempty"`
	Status        BulkOperationStatus `db:"status" json:"status"`
	PerformedBy   string              `db:"performed_by" json:"performed_by"`
	ErrorMessage  *string             `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	CompletedAt   *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	RolledBackAt  *time.Time          `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
	RolledBackBy  *string             `db:"rolled_back_by" json:"rolled_back_by,omitempty"`
}

// Rollbackable reports whether the entry is currently eligible for rollback.
func (l *BulkOperationLog) Rollbackable() bool {
	return l != nil && l.OperationType.Reversible() && l.Status == BulkStatusCompleted
}

// BulkOperationLogFilter constrains history listing.
type BulkOperationLogFilter struct {
	TargetTable   TargetTable
	OperationType BulkOperationType
	Status        []BulkOperationStatus
	PerformedBy   string
	Limit         int
	Offset        int
}

// Row is a table row keyed by column name.
type Row map[string]interface{}

// RowSnapshot captures prior column values of one row, addressed by primary key.
type RowSnapshot struct {
	Key    string                 `json:"key"`
	Values map[string]interface{} `json:"values"`
}
