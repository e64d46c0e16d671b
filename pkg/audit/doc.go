// Package audit records security relevant events: logins, authorization
// denials, data mutations and admin actions.
//
// Events are built from the request context so they carry the actor,
// tenant and request id without callers threading them through:
//
//	logger := audit.NewMultiLogger(dbLogger, audit.NewLogLogger(appLogger))
//	_ = audit.LogDenied(ctx, logger, "client", "42", "owner outside scope")
//
// DBLogger persists to the audit_logs table, LogLogger mirrors events into
// the structured application log.
package audit
