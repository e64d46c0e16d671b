package scope

import (
	"context"
	"sort"

	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// Member is one user as seen by the reporting hierarchy.
type Member struct {
	ID        int64
	TenantID  int64
	Role      rbac.Role
	ManagerID *int64
	IsActive  bool
}

// HierarchySource loads the members of a tenant.
type HierarchySource interface {
	Members(ctx context.Context, tenantID int64) ([]Member, error)
}

// Hierarchy is an immutable snapshot of a tenant's reporting edges. Only
// valid edges are kept: the manager must exist in the same tenant, be
// active and differ from the report.
type Hierarchy struct {
	tenantID int64
	members  map[int64]Member
	reports  map[int64][]int64
}

// NewHierarchy builds a snapshot from members. Members of other tenants are
// ignored.
func NewHierarchy(tenantID int64, members []Member) *Hierarchy {
	h := &Hierarchy{
		tenantID: tenantID,
		members:  make(map[int64]Member, len(members)),
		reports:  make(map[int64][]int64),
	}
	for _, m := range members {
		if m.TenantID == tenantID {
			h.members[m.ID] = m
		}
	}
	for _, m := range h.members {
		if m.ManagerID == nil || *m.ManagerID == m.ID {
			continue
		}
		mgr, ok := h.members[*m.ManagerID]
		if !ok || !mgr.IsActive {
			continue
		}
		h.reports[mgr.ID] = append(h.reports[mgr.ID], m.ID)
	}
	for id := range h.reports {
		sort.Slice(h.reports[id], func(i, j int) bool { return h.reports[id][i] < h.reports[id][j] })
	}
	return h
}

// TenantID returns the tenant the snapshot was built for.
func (h *Hierarchy) TenantID() int64 {
	return h.tenantID
}

// Member returns a member by id.
func (h *Hierarchy) Member(id int64) (Member, bool) {
	m, ok := h.members[id]
	return m, ok
}

// DirectReports returns the members whose valid manager edge points at id,
// ordered by id.
func (h *Hierarchy) DirectReports(id int64) []Member {
	ids := h.reports[id]
	out := make([]Member, 0, len(ids))
	for _, rid := range ids {
		out = append(out, h.members[rid])
	}
	return out
}

// managerTeam is self plus direct salespeople.
func (h *Hierarchy) managerTeam(self int64) []int64 {
	ids := []int64{self}
	for _, r := range h.DirectReports(self) {
		if r.Role == rbac.RoleSalesperson {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// groupTeam is self, every manager reachable through manager edges, and
// the salespeople reporting to self or to any of those managers.
func (h *Hierarchy) groupTeam(self int64) []int64 {
	visited := map[int64]bool{self: true}
	ids := []int64{self}
	queue := []int64{self}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, r := range h.DirectReports(current) {
			if visited[r.ID] {
				continue
			}
			switch r.Role {
			case rbac.RoleManager:
				visited[r.ID] = true
				ids = append(ids, r.ID)
				queue = append(queue, r.ID)
			case rbac.RoleSalesperson:
				visited[r.ID] = true
				ids = append(ids, r.ID)
			}
		}
	}
	return ids
}
