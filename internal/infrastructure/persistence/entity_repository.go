package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/pkg/constants"
	apperrors "github.com/tenantcore/backend/pkg/errors"
	"github.com/tenantcore/backend/pkg/query"
)

// EntityRepository performs generic row access driven by entity definitions.
// All methods operate on whatever Querier the context carries, so they join
// pipeline transactions transparently.
type EntityRepository struct {
	tm *TransactionManager
}

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(tm *TransactionManager) *EntityRepository {
	return &EntityRepository{tm: tm}
}

// Insert persists one record
func (r *EntityRepository) Insert(ctx context.Context, def *schema.EntityDef, rec models.Record) error {
	q := query.Insert(def.Table, rec).Build()
	if _, err := r.tm.Querier(ctx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		if isDuplicateKey(err) {
			return apperrors.NewConflictError(def.Kind, constants.FieldID, rec.ID())
		}
		return fmt.Errorf("insert %s: %w", def.Kind, err)
	}
	return nil
}

// GetByID loads one record. Soft-deleted rows are excluded unless
// includeDeleted is set (ROOT-only at the service layer).
func (r *EntityRepository) GetByID(ctx context.Context, def *schema.EntityDef, id string, includeDeleted bool) (models.Record, error) {
	b := query.From(def.Table).Select([]string{"*"}).Where(
		fmt.Sprintf("`%s`.`%s` = ?", def.Table, constants.FieldID), id)
	if def.Traits.SoftDelete && !includeDeleted {
		b.ExcludeDeleted()
	}
	q := b.Limit(1).Build()

	rows, err := r.tm.Querier(ctx).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", def.Kind, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, apperrors.NewNotFoundError(def.Kind, id)
	}
	return recs[0], nil
}

// List loads records under the given options
func (r *EntityRepository) List(ctx context.Context, def *schema.EntityDef, opts ports.ListOptions) ([]models.Record, error) {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	b := query.From(def.Table).Select(fields)

	if def.Traits.SoftDelete && !opts.IncludeDeleted {
		b.ExcludeDeleted()
	}
	for _, p := range opts.Predicates {
		b.WhereRaw(p.SQL, p.Params)
	}
	b.ApplySecurity(opts.Security.SQL, opts.Security.Params)

	sortField := opts.SortField
	if sortField == "" {
		sortField = constants.FieldCreatedAt
	}
	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}
	b.OrderBy(sortField, direction)
	if sortField != constants.FieldID {
		// Stable paging: id breaks created_at ties
		b.OrderBy(constants.FieldID, "ASC")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = constants.DefaultPageLimit
	}
	if limit > constants.MaxPageLimit {
		limit = constants.MaxPageLimit
	}
	b.Limit(limit)
	if opts.Offset > 0 {
		b.Offset(opts.Offset)
	}

	q := b.Build()
	rows, err := r.tm.Querier(ctx).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", def.Kind, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of rows matching the options, ignoring paging
func (r *EntityRepository) Count(ctx context.Context, def *schema.EntityDef, opts ports.ListOptions) (int, error) {
	b := query.From(def.Table).AddSelectRaw("COUNT(*)", "n")
	if def.Traits.SoftDelete && !opts.IncludeDeleted {
		b.ExcludeDeleted()
	}
	for _, p := range opts.Predicates {
		b.WhereRaw(p.SQL, p.Params)
	}
	b.ApplySecurity(opts.Security.SQL, opts.Security.Params)

	q := b.Build()
	var n int
	if err := r.tm.Querier(ctx).QueryRowContext(ctx, q.SQL, q.Params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", def.Kind, err)
	}
	return n, nil
}

// UpdateByID applies a column diff to one record
func (r *EntityRepository) UpdateByID(ctx context.Context, def *schema.EntityDef, id string, diff map[string]interface{}) error {
	if len(diff) == 0 {
		return nil
	}
	q := query.Update(def.Table).Set(diff).Where(
		fmt.Sprintf("`%s` = ?", constants.FieldID), id).Build()
	res, err := r.tm.Querier(ctx).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		if isDuplicateKey(err) {
			return apperrors.NewConflictError(def.Kind, "", "")
		}
		return fmt.Errorf("update %s: %w", def.Kind, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNotFoundError(def.Kind, id)
	}
	return nil
}

// SoftDelete stamps deleted_at/deleted_by on one record
func (r *EntityRepository) SoftDelete(ctx context.Context, def *schema.EntityDef, id, deletedBy string, now time.Time) error {
	return r.UpdateByID(ctx, def, id, map[string]interface{}{
		constants.FieldDeletedAt: now,
		constants.FieldDeletedBy: deletedBy,
	})
}

// HardDelete removes the row. Reserved to ROOT; unreachable from public
// operations.
func (r *EntityRepository) HardDelete(ctx context.Context, def *schema.EntityDef, id string) error {
	q := query.Delete(def.Table).Where(fmt.Sprintf("`%s` = ?", constants.FieldID), id).Build()
	if _, err := r.tm.Querier(ctx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("hard delete %s: %w", def.Kind, err)
	}
	return nil
}

// Exists reports whether a row with the id exists. includeDeleted counts
// soft-deleted rows too; the seeder relies on that so a tombstoned seed row
// is never re-inserted onto its own primary key.
func (r *EntityRepository) Exists(ctx context.Context, def *schema.EntityDef, id string, includeDeleted bool) (bool, error) {
	b := query.From(def.Table).AddSelectRaw("1").Where(
		fmt.Sprintf("`%s`.`%s` = ?", def.Table, constants.FieldID), id).Limit(1)
	if def.Traits.SoftDelete && !includeDeleted {
		b.ExcludeDeleted()
	}
	q := b.Build()
	var one int
	err := r.tm.Querier(ctx).QueryRowContext(ctx, q.SQL, q.Params...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", def.Kind, err)
	}
	return true, nil
}

// scanRecords converts rows into generic records, normalizing driver byte
// slices to strings
func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(models.Record, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				rec[col] = string(v)
			default:
				rec[col] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// isDuplicateKey checks for MySQL error 1062
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "1062")
}
