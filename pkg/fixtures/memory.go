package fixtures

import (
	"context"
	"sort"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/scope"
)

// Members implements scope.HierarchySource.
func (ds *Dataset) Members(ctx context.Context, tenantID int64) ([]scope.Member, error) {
	var members []scope.Member
	for _, u := range ds.Users {
		if u.TenantID == nil || *u.TenantID != tenantID {
			continue
		}
		members = append(members, scope.Member{
			ID:        u.ID,
			TenantID:  tenantID,
			Role:      u.Role,
			ManagerID: u.ManagerID,
			IsActive:  !u.Inactive,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

// AccountByID implements identity.AccountSource.
func (ds *Dataset) AccountByID(ctx context.Context, id int64) (*identity.Account, error) {
	u, ok := ds.usersByID[id]
	if !ok {
		return nil, apperror.NotFound("user %d not found", id)
	}
	return ds.account(u), nil
}

// AccountByEmail implements identity.AccountSource.
func (ds *Dataset) AccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	u, ok := ds.UserByEmail(email)
	if !ok {
		return nil, apperror.NotFound("user %s not found", email)
	}
	return ds.account(u), nil
}

func (ds *Dataset) account(u *User) *identity.Account {
	acc := &identity.Account{
		ID:            u.ID,
		Email:         u.Email,
		TenantID:      u.TenantID,
		Role:          u.Role.String(),
		ManagerID:     u.ManagerID,
		IsActive:      !u.Inactive,
		IsSystemAdmin: u.SystemAdmin,
	}
	if u.TenantID != nil {
		if t, ok := ds.tenantsByID[*u.TenantID]; ok {
			acc.TenantActive = !t.Inactive
		}
	}
	return acc
}

// Identity resolves the identity of a fixture user, panicking on unknown
// emails. Intended for tests.
func (ds *Dataset) Identity(email string) identity.Identity {
	u, ok := ds.UserByEmail(email)
	if !ok {
		panic("unknown fixture user " + email)
	}
	id, err := identity.FromAccount(ds.account(u))
	if err != nil {
		panic(err)
	}
	return id
}

var (
	_ scope.HierarchySource  = (*Dataset)(nil)
	_ identity.AccountSource = (*Dataset)(nil)
)
