package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrationLockID serializes concurrent Migrate calls across instances
const migrationLockID = 7_401_113

// Migrations is the ordered schema history
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "tenants_and_users",
		SQL: `
CREATE TABLE tenants (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(200) NOT NULL UNIQUE,
	status VARCHAR(20) NOT NULL DEFAULT 'Active' CHECK (status IN ('Active', 'Inactive')),
	currency_symbol VARCHAR(8) NOT NULL DEFAULT '',
	financial_year_start_month SMALLINT NOT NULL DEFAULT 1 CHECK (financial_year_start_month BETWEEN 1 AND 12),
	financial_year_end_month SMALLINT NOT NULL DEFAULT 12 CHECK (financial_year_end_month BETWEEN 1 AND 12),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE users (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	email VARCHAR(320) NOT NULL,
	display_name VARCHAR(200) NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	tenant_id BIGINT REFERENCES tenants(id),
	role VARCHAR(40) NOT NULL,
	manager_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_system_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT users_tenant_required CHECK (is_system_admin OR tenant_id IS NOT NULL),
	CONSTRAINT users_not_own_manager CHECK (manager_id IS NULL OR manager_id <> id)
);

CREATE UNIQUE INDEX idx_users_email_lower ON users (LOWER(email));
CREATE INDEX idx_users_tenant ON users (tenant_id);
CREATE INDEX idx_users_manager ON users (manager_id);

CREATE TABLE refresh_tokens (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_hash CHAR(64) NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_refresh_tokens_user ON refresh_tokens (user_id);
`,
	},
	{
		Version: 2,
		Name:    "crm_entities",
		SQL: `
CREATE TABLE clients (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	name VARCHAR(300) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'Active' CHECK (status IN ('Active', 'Prospect', 'Inactive')),
	assigned_sales_person_id BIGINT NOT NULL REFERENCES users(id),
	pipeline_status_id BIGINT,
	email VARCHAR(320) NOT NULL DEFAULT '',
	phone VARCHAR(50) NOT NULL DEFAULT '',
	annual_value BIGINT NOT NULL DEFAULT 0,
	forecast_value BIGINT NOT NULL DEFAULT 0,
	collected_value BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_clients_scope ON clients (tenant_id, assigned_sales_person_id);

CREATE TABLE deals (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	client_id BIGINT NOT NULL REFERENCES clients(id),
	owner_id BIGINT NOT NULL REFERENCES users(id),
	title VARCHAR(300) NOT NULL,
	value BIGINT NOT NULL DEFAULT 0,
	stage VARCHAR(40) NOT NULL DEFAULT 'Lead',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_deals_scope ON deals (tenant_id, owner_id);

CREATE TABLE tasks (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	client_id BIGINT REFERENCES clients(id),
	assigned_to_id BIGINT NOT NULL REFERENCES users(id),
	title VARCHAR(300) NOT NULL,
	due_at TIMESTAMPTZ,
	is_done BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_tasks_scope ON tasks (tenant_id, assigned_to_id);

CREATE TABLE interactions (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	client_id BIGINT NOT NULL REFERENCES clients(id),
	owner_id BIGINT NOT NULL REFERENCES users(id),
	kind VARCHAR(40) NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_interactions_client ON interactions (tenant_id, client_id);

CREATE TABLE messages (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	sender_id BIGINT NOT NULL REFERENCES users(id),
	recipient_id BIGINT NOT NULL REFERENCES users(id),
	client_id BIGINT REFERENCES clients(id),
	body TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_messages_sender ON messages (tenant_id, sender_id);
CREATE INDEX idx_messages_recipient ON messages (tenant_id, recipient_id);
`,
	},
	{
		Version: 3,
		Name:    "audit_logs",
		SQL: `
CREATE TABLE audit_logs (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	status VARCHAR(20) NOT NULL,
	user_id BIGINT,
	tenant_id BIGINT,
	resource_type VARCHAR(50),
	resource_id VARCHAR(255),
	ip_address VARCHAR(64),
	user_agent TEXT,
	request_id VARCHAR(100),
	method VARCHAR(10),
	path TEXT,
	message TEXT,
	error_message TEXT,
	metadata JSONB,
	changes JSONB
);

CREATE INDEX idx_audit_logs_timestamp ON audit_logs (timestamp DESC);
CREATE INDEX idx_audit_logs_tenant ON audit_logs (tenant_id, timestamp DESC);
CREATE INDEX idx_audit_logs_event_type ON audit_logs (event_type);
`,
	},
	{
		Version: 4,
		Name:    "products",
		SQL: `
CREATE TABLE products (
	id BIGSERIAL PRIMARY KEY,
	key UUID NOT NULL UNIQUE,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	name VARCHAR(300) NOT NULL,
	sku VARCHAR(64) NOT NULL,
	unit_price BIGINT NOT NULL DEFAULT 0 CHECK (unit_price >= 0),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tenant_id, sku)
);
`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration runs in its own transaction under an advisory lock.
func Migrate(ctx context.Context, db *sql.DB) (applied int, err error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range Migrations {
		done, err := applyMigration(ctx, db, m)
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if done {
			applied++
		}
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version,
	).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name,
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// SchemaVersion returns the highest applied migration, or 0
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
