package rbac

import (
	"strings"

	"github.com/platinummonkey/crmgate/pkg/apperror"
)

// Role is a CRM role. The set is closed.
type Role string

const (
	RoleSystemAdmin       Role = "system-admin"
	RoleAdmin             Role = "admin"
	RoleGroupSalesManager Role = "group-sales-manager"
	RoleManager           Role = "manager"
	RoleSalesperson       Role = "salesperson"
	RoleAccountant        Role = "accountant"
	RoleSalesAdmin        Role = "sales-admin"
)

// AllRoles returns every role in descending order of visibility.
func AllRoles() []Role {
	return []Role{
		RoleSystemAdmin,
		RoleAdmin,
		RoleGroupSalesManager,
		RoleManager,
		RoleSalesperson,
		RoleAccountant,
		RoleSalesAdmin,
	}
}

// roleAliases is the canonical table from normalized raw names to roles.
// Keys are lower case with '-' and '_' folded to single spaces.
var roleAliases = map[string]Role{
	"system admin": RoleSystemAdmin,
	"systemadmin":  RoleSystemAdmin,
	"sysadmin":     RoleSystemAdmin,
	"super admin":  RoleSystemAdmin,
	"superadmin":   RoleSystemAdmin,

	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"tenant admin":  RoleAdmin,

	"group sales manager":  RoleGroupSalesManager,
	"group sales managers": RoleGroupSalesManager,
	"gsm":                  RoleGroupSalesManager,
	"sales head":           RoleGroupSalesManager,
	"head of sales":        RoleGroupSalesManager,

	"manager":        RoleManager,
	"managers":       RoleManager,
	"sales manager":  RoleManager,
	"sales managers": RoleManager,
	"team manager":   RoleManager,

	"salesperson":          RoleSalesperson,
	"salespeople":          RoleSalesperson,
	"sales person":         RoleSalesperson,
	"sales people":         RoleSalesperson,
	"sales rep":            RoleSalesperson,
	"sales representative": RoleSalesperson,

	"accountant":  RoleAccountant,
	"accountants": RoleAccountant,
	"accounts":    RoleAccountant,
	"finance":     RoleAccountant,

	"sales admin":         RoleSalesAdmin,
	"sales administrator": RoleSalesAdmin,
	"salesadmin":          RoleSalesAdmin,
}

func normalizeRoleName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseRole maps a raw role name to a Role. Unknown names are a
// validation error, never a default role.
func ParseRole(raw string) (Role, error) {
	if role, ok := roleAliases[normalizeRoleName(raw)]; ok {
		return role, nil
	}
	return "", apperror.Validation("unknown role %q", raw)
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleAdmin, RoleGroupSalesManager, RoleManager,
		RoleSalesperson, RoleAccountant, RoleSalesAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human readable name.
func (r Role) DisplayName() string {
	switch r {
	case RoleSystemAdmin:
		return "System Admin"
	case RoleAdmin:
		return "Admin"
	case RoleGroupSalesManager:
		return "Group Sales Manager"
	case RoleManager:
		return "Manager"
	case RoleSalesperson:
		return "Salesperson"
	case RoleAccountant:
		return "Accountant"
	case RoleSalesAdmin:
		return "Sales Admin"
	}
	return string(r)
}

// UnmarshalText validates the role during decoding, so JSON and YAML
// payloads carrying a synonym decode to the canonical role.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
