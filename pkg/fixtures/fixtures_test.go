package fixtures

import (
	"context"
	"testing"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecconResolves(t *testing.T) {
	ds := Speccon()

	assert.Len(t, ds.Tenants, 3)
	assert.Len(t, ds.Clients, 11)

	mike, ok := ds.UserByEmail("MIKE@speccon.co.za")
	require.True(t, ok)
	assert.Equal(t, rbac.RoleManager, mike.Role)
	require.NotNil(t, mike.ManagerID)
	assert.Equal(t, int64(2), *mike.ManagerID)

	sam, ok := ds.UserByEmail("sam@speccon.co.za")
	require.True(t, ok)
	assert.Equal(t, rbac.RoleSalesAdmin, sam.Role)

	root, ok := ds.UserByID(99)
	require.True(t, ok)
	assert.Nil(t, root.TenantID)

	names := ds.ClientNames(func(c Client) bool { return c.OwnerID == 5 })
	assert.Equal(t, []string{"SP-A1-01", "SP-A1-02"}, names)
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown tenant",
			doc: `
users:
  - {id: 1, email: a@x.io, tenant: Nope, role: admin}`,
		},
		{
			name: "unknown role",
			doc: `
tenants:
  - {id: 1, name: T}
users:
  - {id: 1, email: a@x.io, tenant: T, role: janitor}`,
		},
		{
			name: "tenantless non admin",
			doc: `
users:
  - {id: 1, email: a@x.io, role: manager}`,
		},
		{
			name: "unknown manager",
			doc: `
tenants:
  - {id: 1, name: T}
users:
  - {id: 1, email: a@x.io, tenant: T, role: salesperson, manager: b@x.io}`,
		},
		{
			name: "client owner in another tenant",
			doc: `
tenants:
  - {id: 1, name: T}
  - {id: 2, name: U}
users:
  - {id: 1, email: a@x.io, tenant: T, role: salesperson}
clients:
  - {id: 1, name: C, tenant: U, owner: a@x.io}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDatasetAsSources(t *testing.T) {
	ds := Speccon()
	ctx := context.Background()

	members, err := ds.Members(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, members, 10)
	for _, m := range members {
		assert.Equal(t, int64(1), m.TenantID)
	}

	acc, err := ds.AccountByEmail(ctx, "Hein@Speccon.co.za")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ID)
	assert.True(t, acc.TenantActive)

	_, err = ds.AccountByID(ctx, 12345)
	assert.True(t, apperror.IsNotFound(err))

	id := ds.Identity("root@crmgate.local")
	assert.True(t, id.IsSystemAdmin)
}
