package users

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenHierarchy seeds one edge of every kind the checker knows about
func brokenHierarchy(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			tenant_id INTEGER,
			manager_id INTEGER,
			is_active BOOLEAN NOT NULL DEFAULT 1
		);
		INSERT INTO users (id, tenant_id, manager_id, is_active) VALUES
			(1, 1, NULL, 1),
			(2, 1, 1, 1),
			(3, 1, 3, 1),
			(4, 1, 999, 1),
			(5, 2, 1, 1),
			(6, 1, 7, 1),
			(7, 1, NULL, 0),
			(8, 1, 9, 1),
			(9, 1, 10, 1),
			(10, 1, 8, 1),
			(11, 1, 8, 1);
	`)
	require.NoError(t, err)
	return db
}

func TestIntegrityCheck(t *testing.T) {
	db := brokenHierarchy(t)
	checker := NewIntegrityChecker(db, nil, nil)

	issues, err := checker.Check(context.Background())
	require.NoError(t, err)

	got := make(map[int64]IssueKind)
	for _, issue := range issues {
		got[issue.UserID] = issue.Kind
	}
	assert.Equal(t, map[int64]IssueKind{
		3: IssueSelfManager,
		4: IssueMissingManager,
		5: IssueCrossTenant,
		6: IssueInactiveManager,
		8: IssueCycle,
	}, got)

	for _, issue := range issues {
		if issue.Kind == IssueCycle {
			assert.Equal(t, int64(9), issue.ManagerID)
		}
	}
}

func TestIntegrityRepair(t *testing.T) {
	db := brokenHierarchy(t)
	inv := &recordingInvalidator{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	checker := NewIntegrityChecker(db, inv, metrics)
	rec := &recordingAudit{}
	ctx := audit.WithLogger(context.Background(), rec)

	issues, err := checker.Check(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 5)

	repaired, err := checker.Repair(ctx, issues)
	require.NoError(t, err)
	assert.Equal(t, 5, repaired)
	assert.ElementsMatch(t, []int64{1, 2}, inv.tenants)
	assert.Len(t, rec.events, 5)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IntegrityIssuesTotal.WithLabelValues("cycle", "true")))

	remaining, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// the valid edges survive
	var manager sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT manager_id FROM users WHERE id = 2`).Scan(&manager))
	assert.Equal(t, int64(1), manager.Int64)
	require.NoError(t, db.QueryRow(`SELECT manager_id FROM users WHERE id = 11`).Scan(&manager))
	assert.Equal(t, int64(8), manager.Int64)

	again, err := checker.Repair(ctx, issues)
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IntegrityIssuesTotal.WithLabelValues("cycle", "false")))
}
