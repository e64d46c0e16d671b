// Package rbac defines the closed set of CRM roles and the static
// role x resource x action permission matrix.
//
// Role strings arrive from many places (stored user rows, seed files,
// legacy clients) with inconsistent spelling. ParseRole is the single
// mapping from a raw string to a Role and must be used at every boundary:
//
//	role, err := rbac.ParseRole("Sales Manager") // rbac.RoleManager
//
// The matrix only answers "may this role ever perform this action on this
// kind of resource". Which records a caller can touch is decided by the
// scope package; the authz gate combines both.
package rbac
