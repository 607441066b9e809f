package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ems-program-api/internal/models"
)

// BulkRecordRepository reads and mutates rows of catalog tables selected by a filter predicate.
// Table and column names always come from models.TableSpec, never from request input.
type BulkRecordRepository struct {
	db *sqlx.DB
}

// NewBulkRecordRepository constructs the repository.
func NewBulkRecordRepository(db *sqlx.DB) *BulkRecordRepository {
	return &BulkRecordRepository{db: db}
}

func (r *BulkRecordRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// SelectOptions tunes Select.
type SelectOptions struct {
	Limit     int
	ForUpdate bool
}

// Count returns the number of rows matching pred.
func (r *BulkRecordRepository) Count(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, pred Predicate) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table.Name, pred.Clause)
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, pred.Args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table.Name, err)
	}
	return total, nil
}

// Select returns the allow-listed columns of rows matching pred ordered by primary key.
func (r *BulkRecordRepository) Select(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, pred Predicate, opts SelectOptions) ([]models.Row, error) {
	return r.selectColumns(ctx, exec, table, table.Columns(), pred, opts)
}

// SnapshotFields locks rows matching pred and captures the current value of fields for each.
func (r *BulkRecordRepository) SnapshotFields(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, pred Predicate, fields []string) ([]models.RowSnapshot, error) {
	columns := []string{table.PrimaryKey}
	for _, field := range fields {
		if _, ok := table.Field(field); !ok {
			return nil, fmt.Errorf("snapshot %s: column %q is not allow-listed", table.Name, field)
		}
		if field != table.PrimaryKey {
			columns = append(columns, field)
		}
	}

	rows, err := r.selectColumns(ctx, exec, table, columns, pred, SelectOptions{ForUpdate: true})
	if err != nil {
		return nil, err
	}
	snapshots := make([]models.RowSnapshot, 0, len(rows))
	for _, row := range rows {
		values := make(map[string]interface{}, len(fields))
		for _, field := range fields {
			values[field] = row[field]
		}
		snapshots = append(snapshots, models.RowSnapshot{Key: fmt.Sprint(row[table.PrimaryKey]), Values: values})
	}
	return snapshots, nil
}

// UpdateByKeys sets field to value on every row whose primary key is in keys.
func (r *BulkRecordRepository) UpdateByKeys(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, keys []string, field string, value interface{}) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if _, ok := table.Field(field); !ok || field == table.PrimaryKey {
		return 0, fmt.Errorf("update %s: column %q is not writable", table.Name, field)
	}
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = ANY($2::%s[])", table.Name, field, table.PrimaryKey, table.PrimaryKeyType)
	result, err := r.exec(exec).ExecContext(ctx, query, value, pq.Array(keys))
	if err != nil {
		return 0, fmt.Errorf("update %s.%s: %w", table.Name, field, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check %s update rows: %w", table.Name, err)
	}
	return affected, nil
}

// DeleteByKeys removes every row whose primary key is in keys.
func (r *BulkRecordRepository) DeleteByKeys(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1::%s[])", table.Name, table.PrimaryKey, table.PrimaryKeyType)
	result, err := r.exec(exec).ExecContext(ctx, query, pq.Array(keys))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table.Name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check %s delete rows: %w", table.Name, err)
	}
	return affected, nil
}

// RestoreSnapshots writes captured values back to their rows and returns how many rows still existed.
func (r *BulkRecordRepository) RestoreSnapshots(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, snapshots []models.RowSnapshot) (int64, error) {
	var restored int64
	for _, snapshot := range snapshots {
		fields := make([]string, 0, len(snapshot.Values))
		for field := range snapshot.Values {
			if field == table.PrimaryKey {
				continue
			}
			if _, ok := table.Field(field); !ok {
				return restored, fmt.Errorf("restore %s: column %q is not allow-listed", table.Name, field)
			}
			fields = append(fields, field)
		}
		if len(fields) == 0 {
			continue
		}
		sort.Strings(fields)

		setParts := make([]string, len(fields))
		args := make([]interface{}, 0, len(fields)+1)
		for i, field := range fields {
			args = append(args, snapshot.Values[field])
			setParts[i] = fmt.Sprintf("%s = $%d", field, len(args))
		}
		args = append(args, snapshot.Key)
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", table.Name, strings.Join(setParts, ", "), table.PrimaryKey, len(args))

		result, err := r.exec(exec).ExecContext(ctx, query, args...)
		if err != nil {
			return restored, fmt.Errorf("restore %s row %s: %w", table.Name, snapshot.Key, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return restored, fmt.Errorf("check %s restore rows: %w", table.Name, err)
		}
		restored += affected
	}
	return restored, nil
}

func (r *BulkRecordRepository) selectColumns(ctx context.Context, exec sqlx.ExtContext, table *models.TableSpec, columns []string, pred Predicate, opts SelectOptions) ([]models.Row, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(columns, ", "), table.Name, pred.Clause, table.PrimaryKey))
	if opts.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", opts.Limit))
	}
	if opts.ForUpdate {
		builder.WriteString(" FOR UPDATE")
	}

	rows, err := r.exec(exec).QueryxContext(ctx, builder.String(), pred.Args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table.Name, err)
	}
	defer rows.Close()

	result := make([]models.Row, 0)
	for rows.Next() {
		row := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Name, err)
		}
		for key, value := range row {
			if raw, ok := value.([]byte); ok {
				row[key] = string(raw)
			}
		}
		result = append(result, models.Row(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table.Name, err)
	}
	return result, nil
}
