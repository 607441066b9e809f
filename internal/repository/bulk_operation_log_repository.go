package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/ems-program-api/internal/models"
)

const bulkOperationLogColumns = `id, operation_type, target_table, filters, parameters, affected_count, before_state,
       status, performed_by, error_message, created_at, completed_at, rolled_back_at, rolled_back_by`

// BulkOperationLogRepository persists the bulk operation log.
type BulkOperationLogRepository struct {
	db *sqlx.DB
}

// NewBulkOperationLogRepository constructs the repository.
func NewBulkOperationLogRepository(db *sqlx.DB) *BulkOperationLogRepository {
	return &BulkOperationLogRepository{db: db}
}

func (r *BulkOperationLogRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a log entry, filling id, status and timestamp when empty.
func (r *BulkOperationLogRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.BulkOperationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.BulkStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Filters) == 0 {
		entry.Filters = types.JSONText("[]")
	}
	if len(entry.Parameters) == 0 {
		entry.Parameters = types.JSONText("{}")
	}
	const query = `INSERT INTO bulk_operation_logs
	(id, operation_type, target_table, filters, parameters, affected_count, before_state, status, performed_by, error_message, created_at, completed_at)
	VALUES (:id, :operation_type, :target_table, :filters, :parameters, :affected_count, :before_state, :status, :performed_by, :error_message, :created_at, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("create bulk operation log: %w", err)
	}
	return nil
}

// GetByID fetches a log entry. A missing entry or malformed id yields sql.ErrNoRows.
func (r *BulkOperationLogRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BulkOperationLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := fmt.Sprintf("SELECT %s FROM bulk_operation_logs WHERE id = $1", bulkOperationLogColumns)
	var entry models.BulkOperationLog
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns log entries matching the filter, newest first, with the total match count.
func (r *BulkOperationLogRepository) List(ctx context.Context, filter models.BulkOperationLogFilter) ([]models.BulkOperationLog, int, error) {
	conditions := []string{"1=1"}
	args := make([]interface{}, 0, 6)

	if filter.TargetTable != "" {
		args = append(args, filter.TargetTable)
		conditions = append(conditions, fmt.Sprintf("target_table = $%d", len(args)))
	}
	if filter.OperationType != "" {
		args = append(args, filter.OperationType)
		conditions = append(conditions, fmt.Sprintf("operation_type = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.PerformedBy != "" {
		args = append(args, filter.PerformedBy)
		conditions = append(conditions, fmt.Sprintf("performed_by = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM bulk_operation_logs WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		bulkOperationLogColumns, where, limit, offset)
	var entries []models.BulkOperationLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bulk operation logs: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM bulk_operation_logs WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bulk operation logs: %w", err)
	}
	return entries, total, nil
}

// BulkOperationTransition moves a log entry between lifecycle states.
type BulkOperationTransition struct {
	ID            string
	From          models.BulkOperationStatus
	To            models.BulkOperationStatus
	AffectedCount *int
	BeforeState   *types.JSONText
	ErrorMessage  *string
	Actor         string
	At            time.Time
}

// Transition applies the change only while the entry is still in From. When another writer got
// there first no row matches and sql.ErrNoRows is returned.
func (r *BulkOperationLogRepository) Transition(ctx context.Context, exec sqlx.ExtContext, t BulkOperationTransition) error {
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	setParts := []string{"status = :to"}
	if t.AffectedCount != nil {
		setParts = append(setParts, "affected_count = :affected_count")
	}
	if t.BeforeState != nil {
		setParts = append(setParts, "before_state = :before_state")
	}
	if t.ErrorMessage != nil {
		setParts = append(setParts, "error_message = :error_message")
	}
	switch t.To {
	case models.BulkStatusCompleted, models.BulkStatusFailed:
		setParts = append(setParts, "completed_at = :at")
	case models.BulkStatusRolledBack:
		setParts = append(setParts, "rolled_back_at = :at", "rolled_back_by = :actor")
	}

	query := fmt.Sprintf("UPDATE bulk_operation_logs SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":             t.ID,
		"from":           t.From,
		"to":             t.To,
		"affected_count": t.AffectedCount,
		"before_state":   t.BeforeState,
		"error_message":  t.ErrorMessage,
		"actor":          t.Actor,
		"at":             t.At,
	})
	if err != nil {
		return fmt.Errorf("transition bulk operation %s to %s: %w", t.ID, t.To, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check bulk operation transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
