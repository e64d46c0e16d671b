//go:build integration

package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/platinummonkey/crmgate/pkg/fixtures"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// setupPostgresContainer starts a throwaway PostgreSQL and returns its URL
func setupPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("crmgate_test"),
		tcpostgres.WithUsername("crmgate"),
		tcpostgres.WithPassword("crmgate_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = container.Terminate(cleanupCtx)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func TestMigrateAndSeedAgainstPostgres(t *testing.T) {
	url := setupPostgresContainer(t)
	ctx := context.Background()

	cm, err := NewConnectionManager(ctx, ConnectionConfig{
		PrimaryURL:   url,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}))
	require.NoError(t, err)
	defer cm.Close()
	db := cm.Primary()

	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, len(Migrations), applied)

	// second run is a no-op
	applied, err = Migrate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, applied)

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, len(Migrations), version)

	ds := fixtures.Speccon()
	hash := func(pw string) (string, error) {
		b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		return string(b), err
	}
	require.NoError(t, fixtures.Seed(ctx, db, ds, hash))

	assertCount(t, db, "SELECT COUNT(*) FROM tenants", len(ds.Tenants))
	assertCount(t, db, "SELECT COUNT(*) FROM users", len(ds.Users))
	assertCount(t, db, "SELECT COUNT(*) FROM clients WHERE tenant_id = 1", 8)

	// the schema rejects a user managing itself
	_, err = db.ExecContext(ctx, "UPDATE users SET manager_id = id WHERE id = 5")
	assert.Error(t, err)

	// emails are unique regardless of case
	_, err = db.ExecContext(ctx, `INSERT INTO users (key, email, tenant_id, role)
		VALUES (gen_random_uuid(), 'TOM@SPECCON.CO.ZA', 1, 'salesperson')`)
	assert.Error(t, err)

	require.NoError(t, cm.HealthCheck(ctx))
}

func assertCount(t *testing.T, db *sql.DB, query string, want int) {
	t.Helper()
	var got int
	require.NoError(t, db.QueryRow(query).Scan(&got))
	assert.Equal(t, want, got, query)
}
