package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
)

// Invalidator drops cached hierarchy snapshots of a tenant
type Invalidator interface {
	Invalidate(tenantID int64)
}

type noInvalidator struct{}

func (noInvalidator) Invalidate(int64) {}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const userColumns = `u.id, u.key, u.email, u.display_name, u.tenant_id, u.role, u.manager_id,
		       u.is_active, u.is_system_admin, u.created_at, u.updated_at`

// Store persists users and their refresh tokens in PostgreSQL. It is the
// account source for identity resolution and the hierarchy source for
// scope computation.
type Store struct {
	db          *sql.DB
	invalidator Invalidator
}

// NewStore creates a store. invalidator is told about every write that can
// change a tenant's hierarchy; it may be nil.
func NewStore(db *sql.DB, invalidator Invalidator) *Store {
	if invalidator == nil {
		invalidator = noInvalidator{}
	}
	return &Store{db: db, invalidator: invalidator}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var tenantID, managerID sql.NullInt64
	var role string
	if err := row.Scan(
		&u.ID, &u.Key, &u.Email, &u.DisplayName, &tenantID, &role, &managerID,
		&u.IsActive, &u.IsSystemAdmin, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		u.TenantID = &tenantID.Int64
	}
	if managerID.Valid {
		u.ManagerID = &managerID.Int64
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	u.Role = parsed
	return u, nil
}

// GetByID retrieves a user by id
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE LOWER(u.email) = LOWER($1)`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns the users visible through sc
func (s *Store) List(ctx context.Context, sc *scope.Scope, filter ListFilter, p paging.Params) (paging.Page[*User], error) {
	p = p.Normalize()

	var w postgres.Where
	w.Scope(sc, "u.tenant_id", "u.id")
	if filter.ActiveOnly {
		w.And("u.is_active")
	}
	if filter.Search != "" {
		pattern := w.Arg("%" + filter.Search + "%")
		w.And("(u.email ILIKE " + pattern + " OR u.display_name ILIKE " + pattern + ")")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return paging.Page[*User]{}, fmt.Errorf("failed to count users: %w", err)
	}
	if total == 0 {
		return paging.Empty[*User](p), nil
	}

	clause, args := w.Page(p.Limit(), p.Offset())
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users u`+w.SQL()+` ORDER BY u.id`+clause, args...)
	if err != nil {
		return paging.Page[*User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	items := make([]*User, 0, p.Limit())
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return paging.Page[*User]{}, fmt.Errorf("failed to scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return paging.Page[*User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	return paging.NewPage(items, total, p), nil
}

// Create inserts a tenant user. The manager, when set, is validated inside
// the same transaction.
func (s *Store) Create(ctx context.Context, u *User, passwordHash string) error {
	if u.TenantID == nil {
		return apperror.Validation("tenant is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if u.ManagerID != nil {
		if err := validateManager(ctx, tx, *u.TenantID, 0, *u.ManagerID); err != nil {
			return err
		}
	}

	u.Key = uuid.New()
	u.IsActive = true
	query := `
		INSERT INTO users (key, email, display_name, password_hash, tenant_id, role, manager_id, is_active, is_system_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, FALSE)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		u.Key, u.Email, u.DisplayName, passwordHash, *u.TenantID, string(u.Role), u.ManagerID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return apperror.Conflict("email %s is already registered", u.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	s.invalidator.Invalidate(*u.TenantID)
	return nil
}

// Update writes the mutable fields of u. A changed manager is validated
// against the tenant hierarchy before the write.
func (s *Store) Update(ctx context.Context, u *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if u.ManagerID != nil {
		if u.TenantID == nil {
			return apperror.Validation("system admins have no manager")
		}
		var current sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT manager_id FROM users WHERE id = $1 FOR UPDATE`, u.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("user %d not found", u.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if !current.Valid || current.Int64 != *u.ManagerID {
			if err := validateManager(ctx, tx, *u.TenantID, u.ID, *u.ManagerID); err != nil {
				return err
			}
		}
	}

	query := `
		UPDATE users
		SET display_name = $1, role = $2, manager_id = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`
	err = tx.QueryRowContext(ctx, query, u.DisplayName, string(u.Role), u.ManagerID, u.IsActive, u.ID).Scan(&u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("user %d not found", u.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if !u.IsActive {
		if _, err := tx.ExecContext(ctx, revokeTokensQuery, u.ID); err != nil {
			return fmt.Errorf("failed to revoke tokens: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	if u.TenantID != nil {
		s.invalidator.Invalidate(*u.TenantID)
	}
	return nil
}

// Deactivate marks a user inactive and revokes their refresh tokens. Users
// are never hard deleted; their records keep referencing them.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var tenantID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1 RETURNING tenant_id`, id,
	).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("user %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, revokeTokensQuery, id); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deactivation: %w", err)
	}
	if tenantID.Valid {
		s.invalidator.Invalidate(tenantID.Int64)
	}
	return nil
}

// SetPasswordHash replaces a user's password hash
func (s *Store) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user %d not found", id)
	}
	return nil
}

// ExistsInTenant reports whether userID is an active user of tenantID
func (s *Store) ExistsInTenant(ctx context.Context, userID, tenantID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND tenant_id = $2 AND is_active)`,
		userID, tenantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user tenant: %w", err)
	}
	return exists, nil
}

// Members implements scope.HierarchySource
func (s *Store) Members(ctx context.Context, tenantID int64) ([]scope.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, role, manager_id, is_active
		FROM users
		WHERE tenant_id = $1
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %d hierarchy: %w", tenantID, err)
	}
	defer rows.Close()

	var members []scope.Member
	for rows.Next() {
		var m scope.Member
		var role string
		var managerID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.TenantID, &role, &managerID, &m.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		// An unknown role neither manages nor sells, so it never widens a scope.
		if parsed, err := rbac.ParseRole(role); err == nil {
			m.Role = parsed
		}
		if managerID.Valid {
			m.ManagerID = &managerID.Int64
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

const accountQuery = `
		SELECT u.id, u.email, u.password_hash, u.tenant_id, COALESCE(t.status = 'Active', FALSE),
		       u.role, u.manager_id, u.is_active, u.is_system_admin
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
	`

func scanAccount(row rowScanner) (*identity.Account, error) {
	acc := &identity.Account{}
	var tenantID, managerID sql.NullInt64
	if err := row.Scan(
		&acc.ID, &acc.Email, &acc.PasswordHash, &tenantID, &acc.TenantActive,
		&acc.Role, &managerID, &acc.IsActive, &acc.IsSystemAdmin,
	); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		acc.TenantID = &tenantID.Int64
	}
	if managerID.Valid {
		acc.ManagerID = &managerID.Int64
	}
	return acc, nil
}

// AccountByID implements identity.AccountSource
func (s *Store) AccountByID(ctx context.Context, id int64) (*identity.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, accountQuery+`WHERE u.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return acc, nil
}

// AccountByEmail implements identity.AccountSource
func (s *Store) AccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, accountQuery+`WHERE LOWER(u.email) = LOWER($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return acc, nil
}

// StoreRefreshToken persists the hash of an issued refresh token
func (s *Store) StoreRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken revokes a live refresh token and returns its user.
// Each token can be consumed once.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.Authentication("refresh token is invalid or expired")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	return userID, nil
}

const revokeTokensQuery = `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`

// RevokeRefreshTokens revokes every live refresh token of a user
func (s *Store) RevokeRefreshTokens(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, revokeTokensQuery, userID); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return nil
}

const managerChainQuery = `
		WITH RECURSIVE chain AS (
			SELECT id, manager_id, 1 AS depth FROM users WHERE id = $1
			UNION ALL
			SELECT u.id, u.manager_id, c.depth + 1
			FROM users u
			JOIN chain c ON u.id = c.manager_id
			WHERE c.depth < 64
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)
	`

// validateManager checks that managerID may manage userID in tenantID:
// the manager exists in the same tenant, is active, is not the user, and
// does not report to the user. userID is 0 for a user being created.
func validateManager(ctx context.Context, q queryer, tenantID, userID, managerID int64) error {
	if managerID == userID {
		return apperror.Validation("a user cannot manage themselves")
	}

	var managerTenant sql.NullInt64
	var active bool
	err := q.QueryRowContext(ctx, `SELECT tenant_id, is_active FROM users WHERE id = $1`, managerID).
		Scan(&managerTenant, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Validation("manager %d does not exist", managerID)
	}
	if err != nil {
		return fmt.Errorf("failed to load manager: %w", err)
	}
	if !managerTenant.Valid || managerTenant.Int64 != tenantID {
		return apperror.Validation("manager %d belongs to another tenant", managerID)
	}
	if !active {
		return apperror.Validation("manager %d is inactive", managerID)
	}
	if userID == 0 {
		return nil
	}

	var cycle bool
	if err := q.QueryRowContext(ctx, managerChainQuery, managerID, userID).Scan(&cycle); err != nil {
		return fmt.Errorf("failed to check manager chain: %w", err)
	}
	if cycle {
		return apperror.Validation("user %d already manages %d", userID, managerID)
	}
	return nil
}
