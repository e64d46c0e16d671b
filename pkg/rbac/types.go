package rbac

import "sort"

// Resource represents a resource type in the CRM
type Resource string

const (
	ResourceClient          Resource = "client"
	ResourceDeal            Resource = "deal"
	ResourceTask            Resource = "task"
	ResourceInteraction     Resource = "interaction"
	ResourceMessage         Resource = "message"
	ResourceProduct         Resource = "product"
	ResourceFinancialReport Resource = "financial_report"
	ResourceUser            Resource = "user"
	ResourceTenant          Resource = "tenant"
)

// Owned reports whether records of this resource belong to a single user
// and are therefore filtered by the caller's user scope.
func (r Resource) Owned() bool {
	switch r {
	case ResourceClient, ResourceDeal, ResourceTask, ResourceInteraction, ResourceMessage, ResourceUser:
		return true
	}
	return false
}

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionList     Action = "list"
	ActionRead     Action = "read"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionReassign Action = "reassign"
)

// IsWrite reports whether the action mutates data.
func (a Action) IsWrite() bool {
	return a != ActionList && a != ActionRead
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// NewPermission is shorthand for Permission{Resource: r, Action: a}.
func NewPermission(r Resource, a Action) Permission {
	return Permission{Resource: r, Action: a}
}

var (
	readOnly   = []Action{ActionList, ActionRead}
	crud       = []Action{ActionList, ActionRead, ActionCreate, ActionUpdate, ActionDelete}
	crudAssign = []Action{ActionList, ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionReassign}
	tenantEdit = []Action{ActionList, ActionRead, ActionUpdate}
)

// grants is the static permission matrix. Anything absent is denied.
var grants = map[Role]map[Resource][]Action{
	RoleSystemAdmin: {
		ResourceClient:          crudAssign,
		ResourceDeal:            crudAssign,
		ResourceTask:            crudAssign,
		ResourceInteraction:     crud,
		ResourceMessage:         crud,
		ResourceProduct:         crud,
		ResourceFinancialReport: readOnly,
		ResourceUser:            crud,
		ResourceTenant:          crud,
	},
	RoleAdmin: {
		ResourceClient:          crudAssign,
		ResourceDeal:            crudAssign,
		ResourceTask:            crudAssign,
		ResourceInteraction:     crud,
		ResourceMessage:         crud,
		ResourceProduct:         crud,
		ResourceFinancialReport: readOnly,
		ResourceUser:            crud,
		ResourceTenant:          tenantEdit,
	},
	RoleGroupSalesManager: {
		ResourceClient:          crudAssign,
		ResourceDeal:            crudAssign,
		ResourceTask:            crudAssign,
		ResourceInteraction:     crud,
		ResourceMessage:         crud,
		ResourceProduct:         readOnly,
		ResourceFinancialReport: readOnly,
		ResourceUser:            readOnly,
		ResourceTenant:          readOnly,
	},
	RoleManager: {
		ResourceClient:          crudAssign,
		ResourceDeal:            crudAssign,
		ResourceTask:            crudAssign,
		ResourceInteraction:     crud,
		ResourceMessage:         crud,
		ResourceProduct:         readOnly,
		ResourceFinancialReport: readOnly,
		ResourceUser:            readOnly,
		ResourceTenant:          readOnly,
	},
	RoleSalesperson: {
		ResourceClient:          crud,
		ResourceDeal:            crud,
		ResourceTask:            crud,
		ResourceInteraction:     crud,
		ResourceMessage:         crud,
		ResourceProduct:         readOnly,
		ResourceFinancialReport: readOnly,
		ResourceUser:            readOnly,
		ResourceTenant:          readOnly,
	},
	RoleSalesAdmin: {
		ResourceClient:      crud,
		ResourceDeal:        crud,
		ResourceTask:        crud,
		ResourceInteraction: crud,
		ResourceMessage:     crud,
		ResourceProduct:     readOnly,
		ResourceUser:        readOnly,
		ResourceTenant:      readOnly,
	},
	RoleAccountant: {
		ResourceClient:          readOnly,
		ResourceDeal:            readOnly,
		ResourceTask:            readOnly,
		ResourceInteraction:     readOnly,
		ResourceMessage:         readOnly,
		ResourceProduct:         readOnly,
		ResourceFinancialReport: readOnly,
		ResourceUser:            readOnly,
		ResourceTenant:          readOnly,
	},
}

// Allowed reports whether role may perform the permission's action on the
// permission's resource at all.
func Allowed(role Role, p Permission) bool {
	for _, a := range grants[role][p.Resource] {
		if a == p.Action {
			return true
		}
	}
	return false
}

// PermissionsFor lists every permission granted to role, sorted by
// resource then action.
func PermissionsFor(role Role) []Permission {
	var perms []Permission
	for res, actions := range grants[role] {
		for _, a := range actions {
			perms = append(perms, Permission{Resource: res, Action: a})
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].String() < perms[j].String()
	})
	return perms
}
