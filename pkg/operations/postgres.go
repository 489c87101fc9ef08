package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Service is the CRUD and paged search contract shared by every record type
type Service[T any] interface {
	Search(ctx context.Context, f Filter) (items []T, total int, err error)
	Get(ctx context.Context, id int64) (*T, error)
	Create(ctx context.Context, item *T) error
	Update(ctx context.Context, item *T) error
	Delete(ctx context.Context, id int64) error
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// table describes how one record type maps onto its table
type table[T any] struct {
	name string
	// columns are the writable columns, in the order values returns them
	columns      []string
	values       func(*T) []interface{}
	scan         func(scanner, *T) error
	key          func(*T) *int64
	stamps       func(*T) []interface{}
	searchCols   []string
	factoryCol   string
	equipmentCol string
	timeCol      string
	orderBy      string
}

func (t *table[T]) selectList() string {
	return "id, " + strings.Join(t.columns, ", ") + ", created_at, updated_at"
}

// Repository is a PostgreSQL Service for one table
type Repository[T any] struct {
	db    *sql.DB
	table *table[T]
}

// Get returns one record by id
func (r *Repository[T]) Get(ctx context.Context, id int64) (*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, r.table.selectList(), r.table.name)

	item := new(T)
	err := r.table.scan(r.db.QueryRowContext(ctx, query, id), item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", r.table.name, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", r.table.name, err)
	}
	return item, nil
}

// Create inserts item and fills in its id and timestamps
func (r *Repository[T]) Create(ctx context.Context, item *T) error {
	placeholders := make([]string, len(r.table.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id, created_at, updated_at`,
		r.table.name, strings.Join(r.table.columns, ", "), strings.Join(placeholders, ", "))

	dest := append([]interface{}{r.table.key(item)}, r.table.stamps(item)...)
	err := r.db.QueryRowContext(ctx, query, r.table.values(item)...).Scan(dest...)
	if err != nil {
		return r.writeError("create", err)
	}
	return nil
}

// Update overwrites the writable columns of item
func (r *Repository[T]) Update(ctx context.Context, item *T) error {
	assignments := make([]string, len(r.table.columns))
	for i, c := range r.table.columns {
		assignments[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	id := *r.table.key(item)
	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at = NOW() WHERE id = $%d RETURNING created_at, updated_at`,
		r.table.name, strings.Join(assignments, ", "), len(r.table.columns)+1)

	args := append(r.table.values(item), id)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(r.table.stamps(item)...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", r.table.name, id, ErrNotFound)
	}
	if err != nil {
		return r.writeError("update", err)
	}
	return nil
}

// Delete removes one record by id
func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table.name), id)
	if err != nil {
		return r.writeError("delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.table.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", r.table.name, id, ErrNotFound)
	}
	return nil
}

// Search returns one page of matching records and the total match count
func (r *Repository[T]) Search(ctx context.Context, f Filter) ([]T, int, error) {
	where, args := r.where(f)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, r.table.name, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", r.table.name, err)
	}
	if total == 0 {
		return []T{}, 0, nil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		r.table.selectList(), r.table.name, where, r.table.orderBy, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search %s: %w", r.table.name, err)
	}
	defer rows.Close()

	items := make([]T, 0, limit)
	for rows.Next() {
		var item T
		if err := r.table.scan(rows, &item); err != nil {
			return nil, 0, fmt.Errorf("failed to scan %s: %w", r.table.name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to search %s: %w", r.table.name, err)
	}
	return items, total, nil
}

func (r *Repository[T]) where(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if search := strings.TrimSpace(f.Search); search != "" && len(r.table.searchCols) > 0 {
		args = append(args, "%"+escapeLike(search)+"%")
		ors := make([]string, len(r.table.searchCols))
		for i, c := range r.table.searchCols {
			ors[i] = fmt.Sprintf("%s ILIKE $%d", c, len(args))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if f.FactoryID > 0 && r.table.factoryCol != "" {
		add(r.table.factoryCol+" = $%d", f.FactoryID)
	}
	if f.EquipmentID > 0 && r.table.equipmentCol != "" {
		add(r.table.equipmentCol+" = $%d", f.EquipmentID)
	}
	if f.From != nil {
		add(r.table.timeCol+" >= $%d", *f.From)
	}
	if f.To != nil {
		add(r.table.timeCol+" < $%d", *f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *Repository[T]) writeError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%s %s: %w", op, r.table.name, ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s %s: %w", op, r.table.name, ErrReference)
		}
	}
	return fmt.Errorf("failed to %s %s: %w", op, r.table.name, err)
}
