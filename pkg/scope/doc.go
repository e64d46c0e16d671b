// Package scope computes which tenants and which owners' records an
// identity may see.
//
// Rules, in precedence order:
//
//	system admin          every tenant, every user
//	admin                 own tenant, every user in it
//	group sales manager   own tenant; self, managers reporting to self
//	                      (transitively) and the salespeople under them
//	manager               own tenant; self and direct salespeople
//	salesperson, accountant, sales admin
//	                      own tenant; self only
//
// An accountant computing scope for the Financial domain sees the whole
// tenant. Reporting edges that point at a missing, inactive or
// foreign-tenant manager are dropped, so a broken hierarchy never widens
// visibility. Traversal is cycle safe.
//
// The hierarchy is read from a HierarchySource on each computation. A
// Calculator may hold a per-tenant snapshot for a bounded TTL; mutations of
// the hierarchy must call Invalidate.
package scope
