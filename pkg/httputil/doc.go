// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Every /api response is wrapped in a ResponseDto envelope:
//
//	{"result": ..., "isError": false, "errorMessage": "", "message": "", "statusCode": 200}
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, client)
//	httputil.WriteCreated(w, deal)
//	httputil.WriteAppError(w, r, err) // status from the apperror kind
//
// Internal errors are logged with the request logger and reported to the
// caller as "internal server error".
//
// # Request Parsing
//
//	var req CreateClientRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	page, err := httputil.ParseQueryInt(r, "page", 1)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.AuditMiddleware(auditLogger),
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and rate limiting middleware
package httputil
