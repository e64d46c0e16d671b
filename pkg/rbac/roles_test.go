package rbac

import (
	"encoding/json"
	"testing"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
	}{
		{"system-admin", RoleSystemAdmin},
		{"System Admin", RoleSystemAdmin},
		{"admin", RoleAdmin},
		{"  Administrator ", RoleAdmin},
		{"group-sales-manager", RoleGroupSalesManager},
		{"Group Sales Managers", RoleGroupSalesManager},
		{"sales_head", RoleGroupSalesManager},
		{"manager", RoleManager},
		{"sales manager", RoleManager},
		{"SALES-MANAGER", RoleManager},
		{"salesperson", RoleSalesperson},
		{"Sales Rep", RoleSalesperson},
		{"accountant", RoleAccountant},
		{"sales-admin", RoleSalesAdmin},
		{"sales__admin", RoleSalesAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRole(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRoleRejectsUnknownNames(t *testing.T) {
	for _, raw := range []string{"", "owner", "viewer", "super"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseRole(raw)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestCanonicalNamesParseToThemselves(t *testing.T) {
	for _, role := range AllRoles() {
		got, err := ParseRole(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, got)
		assert.True(t, role.Valid())
	}
	assert.False(t, Role("owner").Valid())
}

func TestRoleUnmarshalJSON(t *testing.T) {
	var payload struct {
		Role Role `json:"role"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"role":"Sales Manager"}`), &payload))
	assert.Equal(t, RoleManager, payload.Role)

	err := json.Unmarshal([]byte(`{"role":"janitor"}`), &payload)
	assert.Error(t, err)
}
