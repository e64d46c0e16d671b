package fixtures

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PasswordHasher hashes a plain text password for storage.
type PasswordHasher func(plain string) (string, error)

// Seed writes the dataset into an empty schema in one transaction. Fixture
// ids are kept so that references in tests and docs stay stable.
func Seed(ctx context.Context, db *sql.DB, ds *Dataset, hash PasswordHasher) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range ds.Tenants {
		status := "Active"
		if t.Inactive {
			status = "Inactive"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tenants (id, name, status, currency_symbol, financial_year_start_month, financial_year_end_month)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, t.Name, status, t.CurrencySymbol, t.FinancialYearStartMonth, t.FinancialYearEndMonth,
		)
		if err != nil {
			return fmt.Errorf("failed to seed tenant %s: %w", t.Name, err)
		}
	}

	for _, u := range ds.Users {
		passwordHash, err := hash(u.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password of %s: %w", u.Email, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, key, email, display_name, password_hash, tenant_id, role, is_active, is_system_admin)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			u.ID, uuid.New(), u.Email, u.DisplayName, passwordHash, u.TenantID, u.Role.String(), !u.Inactive, u.SystemAdmin,
		)
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
		}
	}

	// Managers may be declared after their reports.
	for _, u := range ds.Users {
		if u.ManagerID == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET manager_id = $1 WHERE id = $2`, *u.ManagerID, u.ID); err != nil {
			return fmt.Errorf("failed to link manager of %s: %w", u.Email, err)
		}
	}

	for _, c := range ds.Clients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clients (id, key, tenant_id, name, status, assigned_sales_person_id, annual_value, forecast_value, collected_value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, uuid.New(), c.TenantID, c.Name, c.Status, c.OwnerID, c.AnnualValue, c.ForecastValue, c.CollectedValue,
		)
		if err != nil {
			return fmt.Errorf("failed to seed client %s: %w", c.Name, err)
		}
	}

	for _, table := range []string{"tenants", "users", "clients"} {
		query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 1))`, table, table)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to advance %s sequence: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
