// Package users manages CRM users, their reporting lines and their
// credentials.
//
// # Storage
//
// Store is the PostgreSQL persistence layer. It also serves two read-only
// roles for the rest of the system:
//
//   - identity.AccountSource: bearer tokens carry only a user id, and every
//     request re-reads the account through AccountByID.
//   - scope.HierarchySource: Members returns a tenant's reporting lines for
//     scope computation.
//
// Every write that can change a scope (role, manager, activation) tells the
// Invalidator so cached hierarchy snapshots are dropped.
//
// # Reporting lines
//
// A manager edge is valid when the manager belongs to the same tenant, is
// active, and does not already report to the user. Writes are validated in
// the same transaction as the update. IntegrityChecker finds edges written
// outside the API and clears them.
//
// # Sessions
//
// AuthService issues a short-lived access token and a single-use refresh
// token per login. Refresh rotates the token; changing a password or
// deactivating a user revokes every live refresh token.
package users
