// Package crm stores and serves the tenant-owned sales records: clients,
// deals, tasks, interactions, messages and the product catalogue.
//
// Every Service method takes the caller's identity.Identity and asks the
// authz.Gate before reading or writing. List queries never filter in Go;
// the caller's scope is rendered into the WHERE clause by
// postgres.Where.Scope, so the page count and the rows always agree.
//
// # Ownership
//
// A client is owned by its assigned salesperson. Deals, tasks and
// interactions have an owner of their own and are also visible to whoever
// can see the client they belong to. Messages are visible to whoever can
// see either the sender or the recipient. Products are tenant-wide.
//
// Reassignment checks the record and the new owner against the caller's
// scope, then checks that the new owner is an active user of the record's
// tenant. Client reassignment is conditional on the previous owner, so two
// concurrent reassignments cannot both succeed.
package crm
