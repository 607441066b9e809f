package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/models"
	"github.com/noah-isme/ems-program-api/internal/repository"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
	"github.com/noah-isme/ems-program-api/pkg/export"
)

const (
	historyCachePattern = "history:*"
	maxHistoryLimit     = 200
	receiptMaxRows      = 200
)

type bulkRecordStore interface {
	Count(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, pred repository.Predicate) (int, error)
	Select(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, pred repository.Predicate, opts repository.SelectOptions) ([]models.Row, error)
	SnapshotFields(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, pred repository.Predicate, fields []string) ([]models.RowSnapshot, error)
	UpdateByKeys(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, keys []string, field string, value interface{}) (int64, error)
	DeleteByKeys(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, keys []string) (int64, error)
	RestoreSnapshots(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, snapshots []models.RowSnapshot) (int64, error)
}

type bulkOperationLogStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.BulkOperationLog) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BulkOperationLog, error)
	List(ctx context.Context, filter models.BulkOperationLogFilter) ([]models.BulkOperationLog, int, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, t repository.BulkOperationTransition) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// BulkOperationConfig carries the tunables of the bulk workflow.
type BulkOperationConfig struct {
	PreviewLimit    int
	HistoryLimit    int
	ExportMaxRows   int
	HistoryCacheTTL time.Duration
}

// BulkOperationService previews, executes, logs and rolls back bulk record operations.
type BulkOperationService struct {
	records   bulkRecordStore
	logs      bulkOperationLogStore
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
	metrics   *MetricsService
	csv       *export.CSVExporter
	json      *export.JSONExporter
	pdf       *export.PDFExporter
	cfg       BulkOperationConfig
	now       func() time.Time
}

// BulkOperationServiceOption configures the service.
type BulkOperationServiceOption func(*BulkOperationService)

// WithBulkHistoryCache caches history listings.
func WithBulkHistoryCache(cache *CacheService) BulkOperationServiceOption {
	return func(s *BulkOperationService) {
		s.cache = cache
	}
}

// WithBulkMetrics records operation metrics.
func WithBulkMetrics(metrics *MetricsService) BulkOperationServiceOption {
	return func(s *BulkOperationService) {
		s.metrics = metrics
	}
}

// WithBulkClock overrides the clock used for log timestamps and export filenames.
func WithBulkClock(now func() time.Time) BulkOperationServiceOption {
	return func(s *BulkOperationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBulkOperationService constructs the service with defaults.
func NewBulkOperationService(records bulkRecordStore, logs bulkOperationLogStore, tx txProvider, validate *validator.Validate, logger *zap.Logger, cfg BulkOperationConfig, opts ...BulkOperationServiceOption) *BulkOperationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 20
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = 50
	}
	if cfg.ExportMaxRows <= 0 {
		cfg.ExportMaxRows = 50000
	}
	svc := &BulkOperationService{
		records:   records,
		logs:      logs,
		tx:        tx,
		validator: validate,
		logger:    logger,
		csv:       export.NewCSVExporter(),
		json:      export.NewJSONExporter(),
		pdf:       export.NewPDFExporter(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

type bulkPlan struct {
	op        models.BulkOperationType
	table     *models.TableSpec
	filters   []models.FilterCondition
	predicate repository.Predicate
	params    dto.OperationParams
}

// Execute validates the request and either previews matching rows (dry run) or performs the
// operation and records it in the operation log.
func (s *BulkOperationService) Execute(ctx context.Context, req dto.BulkOperationRequest, actor dto.Actor) (*dto.BulkOperationResult, error) {
	plan, err := s.plan(req)
	if err != nil {
		s.metrics.RecordBulkOperation(string(req.Operation), string(req.TargetTable), "rejected", 0, 0)
		return nil, err
	}
	if req.DryRun {
		return s.preview(ctx, plan)
	}
	if params, ok := plan.params.(dto.DeleteParams); ok && !params.Confirmed {
		s.metrics.RecordBulkOperation(string(plan.op), string(plan.table.Name), "rejected", 0, 0)
		return nil, appErrors.Clone(appErrors.ErrConfirmationRequired, "set parameters.confirmed to true to delete the matched records")
	}

	entry, err := s.beginLog(ctx, plan, actor)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *dto.BulkOperationResult
	switch params := plan.params.(type) {
	case dto.UpdateStatusParams:
		result, err = s.runFieldUpdate(ctx, plan, entry, plan.table.StatusField, params.NewStatus)
	case dto.AssignCohortParams:
		result, err = s.runFieldUpdate(ctx, plan, entry, plan.table.CohortField, params.CohortID)
	case dto.DeleteParams:
		result, err = s.runDelete(ctx, plan, entry)
	case dto.ExportParams:
		result, err = s.runExport(ctx, plan, entry, params.Format)
	default:
		err = appErrors.Clone(appErrors.ErrUnsupportedOperation, fmt.Sprintf("operation %s is not supported", plan.op))
	}
	if err != nil {
		s.failLog(ctx, entry, err)
		s.metrics.RecordBulkOperation(string(plan.op), string(plan.table.Name), "failed", 0, 0)
		s.logger.Error("bulk operation failed",
			zap.String("operation_id", entry.ID),
			zap.String("operation", string(plan.op)),
			zap.String("table", string(plan.table.Name)),
			zap.String("performed_by", actor.ID),
			zap.Error(err),
		)
		return nil, storageFailure(err)
	}

	s.cache.Invalidate(ctx, historyCachePattern)
	affected := 0
	if result.AffectedCount != nil {
		affected = *result.AffectedCount
	}
	s.metrics.RecordBulkOperation(string(plan.op), string(plan.table.Name), "completed", affected, time.Since(start))
	s.logger.Info("bulk operation completed",
		zap.String("operation_id", entry.ID),
		zap.String("operation", string(plan.op)),
		zap.String("table", string(plan.table.Name)),
		zap.String("performed_by", actor.ID),
		zap.Int("affected_count", affected),
	)
	return result, nil
}

func (s *BulkOperationService) plan(req dto.BulkOperationRequest) (*bulkPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk operation payload")
	}
	table, ok := models.LookupTable(req.TargetTable)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownTable, fmt.Sprintf("unknown target table %q", req.TargetTable))
	}
	if !table.Supports(req.Operation) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedOperation, fmt.Sprintf("%s is not supported on %s", req.Operation, table.Name))
	}
	filters := req.Filters
	if filters == nil {
		filters = []models.FilterCondition{}
	}
	predicate, err := repository.BuildPredicate(table, filters)
	if err != nil {
		return nil, err
	}
	params, err := dto.DecodeOperationParams(req.Operation, req.Parameters)
	if err != nil {
		return nil, err
	}
	return &bulkPlan{op: req.Operation, table: table, filters: filters, predicate: predicate, params: params}, nil
}

func (s *BulkOperationService) preview(ctx context.Context, plan *bulkPlan) (*dto.BulkOperationResult, error) {
	start := time.Now()
	total, err := s.records.Count(ctx, nil, plan.table, plan.predicate)
	if err != nil {
		return nil, storageFailure(err)
	}
	rows, err := s.records.Select(ctx, nil, plan.table, plan.predicate, repository.SelectOptions{Limit: s.cfg.PreviewLimit})
	if err != nil {
		return nil, storageFailure(err)
	}
	s.metrics.ObserveDBQuery("bulk_preview", time.Since(start))
	s.metrics.RecordBulkOperation(string(plan.op), string(plan.table.Name), "preview", total, 0)
	return &dto.BulkOperationResult{
		Success:       true,
		DryRun:        true,
		TotalMatching: &total,
		Preview:       rows,
		Message:       fmt.Sprintf("%d %s record(s) match; %s was not applied", total, plan.table.Name, plan.op),
	}, nil
}

func (s *BulkOperationService) beginLog(ctx context.Context, plan *bulkPlan, actor dto.Actor) (*models.BulkOperationLog, error) {
	filters, err := json.Marshal(plan.filters)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode filters")
	}
	params, err := json.Marshal(plan.params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode parameters")
	}
	entry := &models.BulkOperationLog{
		OperationType: plan.op,
		TargetTable:   plan.table.Name,
		Filters:       types.JSONText(filters),
		Parameters:    types.JSONText(params),
		Status:        models.BulkStatusPending,
		PerformedBy:   actor.ID,
		CreatedAt:     s.now(),
	}
	if err := s.logs.Create(ctx, nil, entry); err != nil {
		return nil, storageFailure(err)
	}
	if err := s.logs.Transition(ctx, nil, repository.BulkOperationTransition{
		ID:   entry.ID,
		From: models.BulkStatusPending,
		To:   models.BulkStatusRunning,
		At:   s.now(),
	}); err != nil {
		s.failLog(ctx, entry, err)
		return nil, storageFailure(err)
	}
	entry.Status = models.BulkStatusRunning
	return entry, nil
}

// failLog records the failure on a best-effort basis, even when ctx is already cancelled.
// The entry already exists, so cached history pages are stale either way.
func (s *BulkOperationService) failLog(ctx context.Context, entry *models.BulkOperationLog, cause error) {
	ctx = context.WithoutCancel(ctx)
	defer s.cache.Invalidate(ctx, historyCachePattern)

	message := cause.Error()
	if err := s.logs.Transition(ctx, nil, repository.BulkOperationTransition{
		ID:           entry.ID,
		From:         entry.Status,
		To:           models.BulkStatusFailed,
		ErrorMessage: &message,
		At:           s.now(),
	}); err != nil {
		s.logger.Error("mark bulk operation failed", zap.String("operation_id", entry.ID), zap.Error(err))
		return
	}
	entry.Status = models.BulkStatusFailed
	entry.ErrorMessage = &message
}

// runFieldUpdate snapshots the prior value of field for every matched row, writes value to exactly
// those rows and completes the log entry, all in one transaction.
func (s *BulkOperationService) runFieldUpdate(ctx context.Context, plan *bulkPlan, entry *models.BulkOperationLog, field string, value string) (*dto.BulkOperationResult, error) {
	var affected int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		snapshots, err := s.records.SnapshotFields(ctx, tx, plan.table, plan.predicate, []string{field})
		if err != nil {
			return err
		}
		updated, err := s.records.UpdateByKeys(ctx, tx, plan.table, snapshotKeys(snapshots), field, value)
		if err != nil {
			return err
		}
		affected = int(updated)
		return s.completeLog(ctx, tx, entry, affected, snapshots)
	})
	if err != nil {
		return nil, err
	}
	return &dto.BulkOperationResult{
		Success:       true,
		OperationID:   entry.ID,
		AffectedCount: &affected,
		Message:       fmt.Sprintf("set %s to %q on %d %s record(s)", field, value, affected, plan.table.Name),
	}, nil
}

// runDelete captures full rows before deleting them. The captured rows are kept for audit only.
func (s *BulkOperationService) runDelete(ctx context.Context, plan *bulkPlan, entry *models.BulkOperationLog) (*dto.BulkOperationResult, error) {
	var affected int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		snapshots, err := s.records.SnapshotFields(ctx, tx, plan.table, plan.predicate, plan.table.Columns())
		if err != nil {
			return err
		}
		deleted, err := s.records.DeleteByKeys(ctx, tx, plan.table, snapshotKeys(snapshots))
		if err != nil {
			return err
		}
		affected = int(deleted)
		return s.completeLog(ctx, tx, entry, affected, snapshots)
	})
	if err != nil {
		return nil, err
	}
	return &dto.BulkOperationResult{
		Success:       true,
		OperationID:   entry.ID,
		AffectedCount: &affected,
		Message:       fmt.Sprintf("deleted %d %s record(s); deletions cannot be rolled back", affected, plan.table.Name),
	}, nil
}

func (s *BulkOperationService) runExport(ctx context.Context, plan *bulkPlan, entry *models.BulkOperationLog, format dto.ExportFormat) (*dto.BulkOperationResult, error) {
	total, err := s.records.Count(ctx, nil, plan.table, plan.predicate)
	if err != nil {
		return nil, err
	}
	if total > s.cfg.ExportMaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("export matches %d records, above the limit of %d; narrow the filters", total, s.cfg.ExportMaxRows))
	}
	rows, err := s.records.Select(ctx, nil, plan.table, plan.predicate, repository.SelectOptions{Limit: s.cfg.ExportMaxRows})
	if err != nil {
		return nil, err
	}

	file, err := s.renderExport(plan.table, rows, format)
	if err != nil {
		return nil, err
	}
	count := len(rows)
	if err := s.completeLog(ctx, nil, entry, count, nil); err != nil {
		return nil, err
	}
	return &dto.BulkOperationResult{
		Success:       true,
		OperationID:   entry.ID,
		AffectedCount: &count,
		Message:       fmt.Sprintf("exported %d %s record(s) as %s", count, plan.table.Name, format),
		Export:        file,
	}, nil
}

func (s *BulkOperationService) renderExport(table *models.TableSpec, rows []models.Row, format dto.ExportFormat) (*dto.ExportFile, error) {
	columns := table.Columns()
	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case dto.ExportFormatCSV:
		dataset := export.Dataset{Headers: columns, Rows: make([]map[string]string, len(rows))}
		for i, row := range rows {
			cells := make(map[string]string, len(columns))
			for _, field := range table.Fields {
				cells[field.Name] = formatCell(field, row[field.Name])
			}
			dataset.Rows[i] = cells
		}
		data, err = s.csv.Render(dataset)
		contentType = s.csv.ContentType()
	case dto.ExportFormatJSON:
		records := export.Records{Columns: columns, Rows: make([]map[string]interface{}, len(rows))}
		for i, row := range rows {
			values := make(map[string]interface{}, len(columns))
			for _, field := range table.Fields {
				values[field.Name] = jsonValue(field, row[field.Name])
			}
			records.Rows[i] = values
		}
		data, err = s.json.Render(records)
		contentType = s.json.ContentType()
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render export")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("%s_export_%s.%s", table.Name, s.now().Format("20060102_150405"), format),
		ContentType: contentType,
		Data:        data,
		RowCount:    len(rows),
	}, nil
}

func (s *BulkOperationService) completeLog(ctx context.Context, exec sqlx.ExtContext, entry *models.BulkOperationLog, affected int, snapshots []models.RowSnapshot) error {
	transition := repository.BulkOperationTransition{
		ID:            entry.ID,
		From:          models.BulkStatusRunning,
		To:            models.BulkStatusCompleted,
		AffectedCount: &affected,
		At:            s.now(),
	}
	if snapshots != nil {
		payload, err := json.Marshal(snapshots)
		if err != nil {
			return fmt.Errorf("encode before state: %w", err)
		}
		state := types.JSONText(payload)
		transition.BeforeState = &state
	}
	if err := s.logs.Transition(ctx, exec, transition); err != nil {
		return err
	}
	entry.Status = models.BulkStatusCompleted
	entry.AffectedCount = affected
	entry.BeforeState = transition.BeforeState
	return nil
}

// Rollback restores the captured prior values of a completed reversible operation. The log entry
// moves to rolled_back in the same transaction as the restore, so a second rollback always fails.
func (s *BulkOperationService) Rollback(ctx context.Context, id string, actor dto.Actor) (*dto.RollbackResult, error) {
	entry, err := s.logs.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulk operation not found")
		}
		return nil, storageFailure(err)
	}
	if err := rollbackEligibility(entry); err != nil {
		s.metrics.RecordRollback(string(entry.TargetTable), "rejected")
		return nil, err
	}
	table, ok := models.LookupTable(entry.TargetTable)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotRollbackable, fmt.Sprintf("table %s is no longer available", entry.TargetTable))
	}
	snapshots, err := decodeSnapshots(entry.BeforeState)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotRollbackable.Code, appErrors.ErrNotRollbackable.Status, "captured state is unreadable")
	}

	var restored int64
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.logs.Transition(ctx, tx, repository.BulkOperationTransition{
			ID:    entry.ID,
			From:  models.BulkStatusCompleted,
			To:    models.BulkStatusRolledBack,
			Actor: actor.ID,
			At:    s.now(),
		}); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			current, getErr := s.logs.GetByID(ctx, tx, entry.ID)
			if getErr != nil {
				return getErr
			}
			if eligErr := rollbackEligibility(current); eligErr != nil {
				return eligErr
			}
			return appErrors.Clone(appErrors.ErrConflict, "bulk operation changed during rollback, retry")
		}
		var restoreErr error
		restored, restoreErr = s.records.RestoreSnapshots(ctx, tx, table, snapshots)
		return restoreErr
	})
	if err != nil {
		outcome := "failed"
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			outcome = "rejected"
		}
		s.metrics.RecordRollback(string(table.Name), outcome)
		s.logger.Warn("bulk rollback aborted", zap.String("operation_id", entry.ID), zap.String("actor", actor.ID), zap.Error(err))
		return nil, storageFailure(err)
	}

	s.cache.Invalidate(ctx, historyCachePattern)
	s.metrics.RecordRollback(string(table.Name), "completed")
	s.logger.Info("bulk operation rolled back",
		zap.String("operation_id", entry.ID),
		zap.String("operation", string(entry.OperationType)),
		zap.String("table", string(table.Name)),
		zap.String("actor", actor.ID),
		zap.Int64("restored_count", restored),
	)
	return &dto.RollbackResult{
		Success:       true,
		OperationID:   entry.ID,
		RestoredCount: int(restored),
		Message:       fmt.Sprintf("restored %d of %d %s record(s)", restored, len(snapshots), table.Name),
	}, nil
}

func rollbackEligibility(entry *models.BulkOperationLog) error {
	switch {
	case !entry.OperationType.Reversible():
		return appErrors.Clone(appErrors.ErrNotRollbackable, fmt.Sprintf("%s operations cannot be rolled back", entry.OperationType))
	case entry.Status == models.BulkStatusRolledBack:
		return appErrors.Clone(appErrors.ErrAlreadyRolledBack, "operation has already been rolled back")
	case entry.Status != models.BulkStatusCompleted:
		return appErrors.Clone(appErrors.ErrNotRollbackable, fmt.Sprintf("only completed operations can be rolled back (status %s)", entry.Status))
	case entry.BeforeState == nil:
		return appErrors.Clone(appErrors.ErrNotRollbackable, "operation has no captured state")
	}
	return nil
}

// List returns operation history, newest first.
func (s *BulkOperationService) List(ctx context.Context, query dto.BulkOperationQuery) (*dto.BulkOperationHistory, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	statuses := make([]string, len(query.Status))
	for i, status := range query.Status {
		statuses[i] = string(status)
	}
	key := Key("history", query.TargetTable, query.OperationType, strings.Join(statuses, ","), query.PerformedBy, limit, offset)
	var cached dto.BulkOperationHistory
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	entries, total, err := s.logs.List(ctx, models.BulkOperationLogFilter{
		TargetTable:   query.TargetTable,
		OperationType: query.OperationType,
		Status:        query.Status,
		PerformedBy:   query.PerformedBy,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, storageFailure(err)
	}
	if entries == nil {
		entries = []models.BulkOperationLog{}
	}
	history := &dto.BulkOperationHistory{
		Success:    true,
		Operations: entries,
		Pagination: &models.Pagination{Page: offset/limit + 1, PageSize: limit, TotalCount: total},
	}
	s.cache.Set(ctx, key, history, s.cfg.HistoryCacheTTL)
	return history, nil
}

// Get returns one log entry.
func (s *BulkOperationService) Get(ctx context.Context, id string) (*models.BulkOperationLog, error) {
	entry, err := s.logs.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulk operation not found")
		}
		return nil, storageFailure(err)
	}
	return entry, nil
}

// Receipt renders a printable PDF summary of a log entry and its captured rows.
func (s *BulkOperationService) Receipt(ctx context.Context, id string) (*dto.ExportFile, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshots, err := decodeSnapshots(entry.BeforeState)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "captured state is unreadable")
	}

	summary := []export.Field{
		{Label: "Operation ID", Value: entry.ID},
		{Label: "Operation", Value: string(entry.OperationType)},
		{Label: "Table", Value: string(entry.TargetTable)},
		{Label: "Status", Value: string(entry.Status)},
		{Label: "Performed by", Value: entry.PerformedBy},
		{Label: "Created at", Value: entry.CreatedAt.UTC().Format(time.RFC3339)},
		{Label: "Affected records", Value: strconv.Itoa(entry.AffectedCount)},
		{Label: "Filters", Value: string(entry.Filters)},
		{Label: "Parameters", Value: string(entry.Parameters)},
	}
	if entry.CompletedAt != nil {
		summary = append(summary, export.Field{Label: "Completed at", Value: entry.CompletedAt.UTC().Format(time.RFC3339)})
	}
	if entry.ErrorMessage != nil {
		summary = append(summary, export.Field{Label: "Error", Value: *entry.ErrorMessage})
	}
	if entry.RolledBackAt != nil {
		by := ""
		if entry.RolledBackBy != nil {
			by = *entry.RolledBackBy
		}
		summary = append(summary, export.Field{Label: "Rolled back", Value: fmt.Sprintf("%s by %s", entry.RolledBackAt.UTC().Format(time.RFC3339), by)})
	}
	if len(snapshots) > receiptMaxRows {
		summary = append(summary, export.Field{Label: "Rows shown", Value: fmt.Sprintf("%d of %d", receiptMaxRows, len(snapshots))})
		snapshots = snapshots[:receiptMaxRows]
	}

	data, err := s.pdf.Render(export.Document{
		Title:   "Bulk operation receipt",
		Summary: summary,
		Table:   snapshotDataset(snapshots),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render receipt")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("bulk_operation_%s.pdf", entry.ID),
		ContentType: "application/pdf",
		Data:        data,
		RowCount:    len(snapshots),
	}, nil
}

// Tables describes the catalog for the filter builder.
func (s *BulkOperationService) Tables() []dto.TargetTableInfo {
	tables := models.Tables()
	infos := make([]dto.TargetTableInfo, 0, len(tables))
	for _, table := range tables {
		info := dto.TargetTableInfo{Name: table.Name, PrimaryKey: table.PrimaryKey}
		for _, field := range table.Fields {
			operators := make([]models.FilterOperator, 0, len(models.FilterOperators))
			for _, op := range models.FilterOperators {
				if field.Type.Supports(op) {
					operators = append(operators, op)
				}
			}
			info.Fields = append(info.Fields, dto.TargetFieldInfo{Name: field.Name, Type: field.Type, Operators: operators})
		}
		for _, op := range models.BulkOperationTypes {
			if table.Supports(op) {
				info.Operations = append(info.Operations, op)
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func (s *BulkOperationService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	start := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
		s.metrics.ObserveDBQuery("bulk_transaction", time.Since(start))
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk transaction: %w", err)
	}
	return nil
}

// storageFailure passes typed errors through and reports everything else as a retryable storage failure.
func storageFailure(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, appErrors.ErrStorageFailure.Message)
}

func snapshotKeys(snapshots []models.RowSnapshot) []string {
	keys := make([]string, len(snapshots))
	for i, snapshot := range snapshots {
		keys[i] = snapshot.Key
	}
	return keys
}

func decodeSnapshots(state *types.JSONText) ([]models.RowSnapshot, error) {
	if state == nil || len(*state) == 0 {
		return nil, nil
	}
	var snapshots []models.RowSnapshot
	if err := state.Unmarshal(&snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func snapshotDataset(snapshots []models.RowSnapshot) export.Dataset {
	if len(snapshots) == 0 {
		return export.Dataset{}
	}
	seen := map[string]struct{}{}
	columns := make([]string, 0)
	for _, snapshot := range snapshots {
		for column := range snapshot.Values {
			if _, ok := seen[column]; !ok {
				seen[column] = struct{}{}
				columns = append(columns, column)
			}
		}
	}
	sort.Strings(columns)
	dataset := export.Dataset{Headers: append([]string{"key"}, columns...)}
	for _, snapshot := range snapshots {
		row := map[string]string{"key": snapshot.Key}
		for _, column := range columns {
			if value := snapshot.Values[column]; value != nil {
				row[column] = fmt.Sprint(value)
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset
}

func formatCell(field models.TableField, value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		if field.Type == models.FieldDate {
			return v.Format("2006-01-02")
		}
		return v.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func jsonValue(field models.TableField, value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return formatCell(field, v)
	case string:
		if field.Type == models.FieldNumber {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		}
		return v
	default:
		return v
	}
}
