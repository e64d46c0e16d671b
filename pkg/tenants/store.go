package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
)

const tenantColumns = `t.id, t.name, t.status, t.currency_symbol, t.financial_year_start_month,
		       t.financial_year_end_month, t.created_at, t.updated_at`

// Store persists tenants in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Status, &t.CurrencySymbol, &t.FinancialYearStartMonth,
		&t.FinancialYearEndMonth, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a tenant by id
func (s *Store) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants t WHERE t.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("tenant %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// List returns the tenants visible through sc, ordered by name
func (s *Store) List(ctx context.Context, sc *scope.Scope, p paging.Params) (paging.Page[*Tenant], error) {
	p = p.Normalize()

	var w postgres.Where
	w.Scope(sc, "t.id")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants t`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return paging.Page[*Tenant]{}, fmt.Errorf("failed to count tenants: %w", err)
	}
	if total == 0 {
		return paging.Empty[*Tenant](p), nil
	}

	clause, args := w.Page(p.Limit(), p.Offset())
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants t`+w.SQL()+` ORDER BY t.name`+clause, args...)
	if err != nil {
		return paging.Page[*Tenant]{}, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var items []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return paging.Page[*Tenant]{}, fmt.Errorf("failed to scan tenant: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return paging.Page[*Tenant]{}, fmt.Errorf("failed to list tenants: %w", err)
	}
	return paging.NewPage(items, total, p), nil
}

// All returns every tenant. Background jobs use it to fan out per tenant.
func (s *Store) All(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants t ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var items []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// Create inserts a tenant
func (s *Store) Create(ctx context.Context, t *Tenant) error {
	if t.Status == "" {
		t.Status = StatusActive
	}
	query := `
		INSERT INTO tenants (name, status, currency_symbol, financial_year_start_month, financial_year_end_month)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		t.Name, string(t.Status), t.CurrencySymbol, t.FinancialYearStartMonth, t.FinancialYearEndMonth,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return apperror.Conflict("tenant %q already exists", t.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// Update writes every mutable field of t
func (s *Store) Update(ctx context.Context, t *Tenant) error {
	query := `
		UPDATE tenants
		SET name = $1, status = $2, currency_symbol = $3, financial_year_start_month = $4,
		    financial_year_end_month = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		t.Name, string(t.Status), t.CurrencySymbol, t.FinancialYearStartMonth, t.FinancialYearEndMonth, t.ID,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("tenant %d not found", t.ID)
	}
	if postgres.IsUniqueViolation(err) {
		return apperror.Conflict("tenant %q already exists", t.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}
