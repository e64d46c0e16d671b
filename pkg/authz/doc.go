// Package authz is the authorization gate in front of every data access.
//
// A check runs in two steps:
//
//  1. The static role x resource x action matrix (pkg/rbac).
//  2. The caller's scope (pkg/scope): the record's tenant must be visible,
//     and for owned resources at least one owner must be in the user filter.
//
// List and aggregate operations call ListScope and push the returned scope
// into the query, so pagination counts use the same filter as the rows.
// Direct-by-id operations load the record's tenant and owners first and call
// Require, which fails with apperror PermissionDenied when the record is out
// of scope.
//
//	sc, err := gate.ListScope(ctx, id, rbac.ResourceClient)
//	page, err := store.ListClients(ctx, sc, filter, params)
//
//	_, err := gate.Require(ctx, id, rbac.NewPermission(rbac.ResourceClient, rbac.ActionUpdate),
//		&authz.Target{ID: c.ID, TenantID: c.TenantID, OwnerIDs: []int64{c.AssignedSalesPersonID}})
//
// Denials are counted in crmgate_authz_decisions_total and written to the
// audit log found in the request context.
package authz
