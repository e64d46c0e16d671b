package scope

import "sort"

// Domain selects which visibility rules apply.
type Domain int

const (
	// DomainGeneral covers clients, deals, tasks, messages, interactions
	// and users.
	DomainGeneral Domain = iota
	// DomainFinancial covers read-only financial aggregates.
	DomainFinancial
)

func (d Domain) String() string {
	if d == DomainFinancial {
		return "financial"
	}
	return "general"
}

// Scope is the result of a scope computation: a tenant filter and a user
// filter. The zero value permits nothing.
type Scope struct {
	// AllTenants disables the tenant filter.
	AllTenants bool `json:"allTenants"`
	// TenantID is the only visible tenant when AllTenants is false.
	TenantID *int64 `json:"tenantId,omitempty"`
	// AllUsers disables the user filter within the visible tenants.
	AllUsers bool `json:"allUsers"`
	// UserIDs are the visible owners when AllUsers is false, sorted
	// ascending without duplicates.
	UserIDs []int64 `json:"userIds,omitempty"`
}

// Universal is the system admin scope.
func Universal() *Scope {
	return &Scope{AllTenants: true, AllUsers: true}
}

// Tenant is the scope of every user in a tenant.
func Tenant(tenantID int64) *Scope {
	return &Scope{TenantID: &tenantID, AllUsers: true}
}

// Users is the scope of the given users within a tenant.
func Users(tenantID int64, userIDs ...int64) *Scope {
	return &Scope{TenantID: &tenantID, UserIDs: normalizeIDs(userIDs)}
}

// PermitsTenant reports whether records of tenantID are visible.
func (s *Scope) PermitsTenant(tenantID int64) bool {
	if s == nil {
		return false
	}
	return s.AllTenants || (s.TenantID != nil && *s.TenantID == tenantID)
}

// PermitsUser reports whether records owned by userID are visible within
// the permitted tenants.
func (s *Scope) PermitsUser(userID int64) bool {
	if s == nil {
		return false
	}
	if s.AllUsers {
		return true
	}
	i := sort.Search(len(s.UserIDs), func(i int) bool { return s.UserIDs[i] >= userID })
	return i < len(s.UserIDs) && s.UserIDs[i] == userID
}

// Permits reports whether a record in tenantID owned by ownerID is visible.
func (s *Scope) Permits(tenantID, ownerID int64) bool {
	return s.PermitsTenant(tenantID) && s.PermitsUser(ownerID)
}

// IsEmpty reports whether the scope can match no record at all.
func (s *Scope) IsEmpty() bool {
	if s == nil {
		return true
	}
	if !s.AllTenants && s.TenantID == nil {
		return true
	}
	return !s.AllUsers && len(s.UserIDs) == 0
}

// Equal reports whether two scopes permit the same records.
func (s *Scope) Equal(o *Scope) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.AllTenants != o.AllTenants || s.AllUsers != o.AllUsers {
		return false
	}
	if !s.AllTenants {
		if (s.TenantID == nil) != (o.TenantID == nil) {
			return false
		}
		if s.TenantID != nil && *s.TenantID != *o.TenantID {
			return false
		}
	}
	if s.AllUsers {
		return true
	}
	if len(s.UserIDs) != len(o.UserIDs) {
		return false
	}
	for i := range s.UserIDs {
		if s.UserIDs[i] != o.UserIDs[i] {
			return false
		}
	}
	return true
}

func normalizeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
