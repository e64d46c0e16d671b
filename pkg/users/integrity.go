package users

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

// IssueKind classifies a broken manager edge
type IssueKind string

const (
	IssueSelfManager     IssueKind = "self_manager"
	IssueMissingManager  IssueKind = "missing_manager"
	IssueCrossTenant     IssueKind = "cross_tenant_manager"
	IssueInactiveManager IssueKind = "inactive_manager"
	IssueCycle           IssueKind = "cycle"
)

// Issue is one manager edge that scope computation ignores
type Issue struct {
	UserID    int64     `json:"userId"`
	TenantID  *int64    `json:"tenantId,omitempty"`
	ManagerID int64     `json:"managerId"`
	Kind      IssueKind `json:"kind"`
}

// IntegrityChecker finds and clears manager edges that do not form a valid
// per-tenant hierarchy. Scope computation already skips such edges; the
// checker makes the stored data agree with it.
type IntegrityChecker struct {
	db          *sql.DB
	invalidator Invalidator
	metrics     *observability.Metrics
}

// NewIntegrityChecker creates a checker. invalidator and metrics may be nil.
func NewIntegrityChecker(db *sql.DB, invalidator Invalidator, metrics *observability.Metrics) *IntegrityChecker {
	if invalidator == nil {
		invalidator = noInvalidator{}
	}
	return &IntegrityChecker{db: db, invalidator: invalidator, metrics: metrics}
}

type edge struct {
	userID        int64
	tenantID      sql.NullInt64
	managerID     int64
	managerFound  bool
	managerTenant sql.NullInt64
	managerActive bool
}

// Check returns every broken edge, ordered by user id. A cycle is reported
// once, on the edge leaving its lowest user id.
func (c *IntegrityChecker) Check(ctx context.Context) ([]Issue, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT u.id, u.tenant_id, u.manager_id, m.id, m.tenant_id, m.is_active
		FROM users u
		LEFT JOIN users m ON m.id = u.manager_id
		WHERE u.manager_id IS NOT NULL
		ORDER BY u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load manager edges: %w", err)
	}
	defer rows.Close()

	var edges []edge
	for rows.Next() {
		var e edge
		var managerRow sql.NullInt64
		var active sql.NullBool
		if err := rows.Scan(&e.userID, &e.tenantID, &e.managerID, &managerRow, &e.managerTenant, &active); err != nil {
			return nil, fmt.Errorf("failed to scan manager edge: %w", err)
		}
		e.managerFound = managerRow.Valid
		e.managerActive = active.Valid && active.Bool
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load manager edges: %w", err)
	}

	var issues []Issue
	// structural holds the same-tenant edges a cycle can run through
	structural := make(map[int64]edge)
	for _, e := range edges {
		kind := classify(e)
		if kind != "" {
			issues = append(issues, newIssue(e, kind))
		}
		if kind == "" || kind == IssueInactiveManager {
			structural[e.userID] = e
		}
	}
	issues = append(issues, findCycles(structural)...)

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].UserID < issues[j].UserID })
	return issues, nil
}

func classify(e edge) IssueKind {
	switch {
	case e.managerID == e.userID:
		return IssueSelfManager
	case !e.managerFound:
		return IssueMissingManager
	case !e.tenantID.Valid || !e.managerTenant.Valid || e.tenantID.Int64 != e.managerTenant.Int64:
		return IssueCrossTenant
	case !e.managerActive:
		return IssueInactiveManager
	}
	return ""
}

func newIssue(e edge, kind IssueKind) Issue {
	issue := Issue{UserID: e.userID, ManagerID: e.managerID, Kind: kind}
	if e.tenantID.Valid {
		tenantID := e.tenantID.Int64
		issue.TenantID = &tenantID
	}
	return issue
}

// findCycles walks the functional graph user -> manager
func findCycles(edges map[int64]edge) []Issue {
	const (
		unvisited = iota
		walking
		done
	)
	state := make(map[int64]int, len(edges))

	ids := make([]int64, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var issues []Issue
	for _, start := range ids {
		if state[start] != unvisited {
			continue
		}
		var path []int64
		node := start
		for {
			if state[node] == walking {
				// node closes a loop; the cycle is path from node onward
				issues = append(issues, cycleIssue(edges, path, node))
				break
			}
			if state[node] == done {
				break
			}
			e, ok := edges[node]
			if !ok {
				break
			}
			state[node] = walking
			path = append(path, node)
			node = e.managerID
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return issues
}

func cycleIssue(edges map[int64]edge, path []int64, entry int64) Issue {
	lowest := entry
	inCycle := false
	for _, id := range path {
		if id == entry {
			inCycle = true
		}
		if inCycle && id < lowest {
			lowest = id
		}
	}
	return newIssue(edges[lowest], IssueCycle)
}

// Repair clears the manager edge of every issue whose edge is unchanged
// since Check, and returns the number cleared.
func (c *IntegrityChecker) Repair(ctx context.Context, issues []Issue) (int, error) {
	logger := observability.FromContext(ctx)
	tenants := make(map[int64]struct{})
	repaired := 0

	for _, issue := range issues {
		result, err := c.db.ExecContext(ctx,
			`UPDATE users SET manager_id = NULL WHERE id = $1 AND manager_id = $2`,
			issue.UserID, issue.ManagerID)
		if err != nil {
			return repaired, fmt.Errorf("failed to clear manager of user %d: %w", issue.UserID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return repaired, fmt.Errorf("failed to get rows affected: %w", err)
		}
		c.record(issue.Kind, n > 0)
		if n == 0 {
			continue
		}

		repaired++
		if issue.TenantID != nil {
			tenants[*issue.TenantID] = struct{}{}
		}
		logger.WithFields(map[string]interface{}{
			"user_id":    issue.UserID,
			"manager_id": issue.ManagerID,
			"kind":       string(issue.Kind),
		}).Info("cleared broken manager edge")

		err = audit.LogMutation(ctx, audit.FromContext(ctx), audit.EventTypeOpsIntegrityRepair, "user",
			strconv.FormatInt(issue.UserID, 10), &audit.ChangeDetails{
				Before: map[string]interface{}{"manager_id": issue.ManagerID, "issue": string(issue.Kind)},
				After:  map[string]interface{}{"manager_id": nil},
			})
		if err != nil {
			logger.WithError(err).Warn("failed to audit integrity repair")
		}
	}

	for tenantID := range tenants {
		c.invalidator.Invalidate(tenantID)
	}
	return repaired, nil
}

func (c *IntegrityChecker) record(kind IssueKind, repaired bool) {
	if c.metrics != nil {
		c.metrics.IntegrityIssuesTotal.WithLabelValues(string(kind), strconv.FormatBool(repaired)).Inc()
	}
}
