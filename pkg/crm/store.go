package crm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
)

// Store persists CRM records in PostgreSQL. Every list query takes the
// caller's scope and applies it in SQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a CRM store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// listPage runs the count and page queries for one filtered list. from is
// the FROM clause including joins.
func listPage[T any](ctx context.Context, db *sql.DB, columns, from, order string, w *postgres.Where, p paging.Params, scan func(rowScanner) (T, error)) (paging.Page[T], error) {
	p = p.Normalize()

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+from+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return paging.Page[T]{}, fmt.Errorf("failed to count rows: %w", err)
	}
	if total == 0 {
		return paging.Empty[T](p), nil
	}

	clause, args := w.Page(p.Limit(), p.Offset())
	rows, err := db.QueryContext(ctx, `SELECT `+columns+` FROM `+from+w.SQL()+` ORDER BY `+order+clause, args...)
	if err != nil {
		return paging.Page[T]{}, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	items := make([]T, 0, p.Limit())
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return paging.Page[T]{}, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return paging.Page[T]{}, fmt.Errorf("failed to list rows: %w", err)
	}
	return paging.NewPage(items, total, p), nil
}

// affectedOne reports whether exactly one row changed
func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}
