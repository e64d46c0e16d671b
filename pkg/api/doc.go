/*
Package api serves the CRM REST surface under /api/{Entity}/{Action}.

# Overview

Every response, success or failure, is a ResponseDto envelope:

	{"result": ..., "isError": false, "message": "", "statusCode": 200}

Paginated endpoints return the PagedResult shape inside result:

	{"results": [...], "currentPage": 1, "pageCount": 3, "pageSize": 25, "rowCount": 61}

# Authentication

POST /api/User/Login and POST /api/User/Refresh are public and sit behind
the login rate limiter. Every other route requires an
"Authorization: Bearer" header. The bearer is resolved to an identity on
each request, so role, tenant and manager changes apply immediately.

# Authorization

Handlers never filter data themselves. They pass the resolved identity to
the domain services, which run every read and write through the
authorization gate. Out-of-scope lookups answer 403, unknown ids answer
404, and list endpoints only ever return rows inside the caller's scope.

# Middleware

Server.Handler wraps the router, from the outside in, with panic recovery,
request ids, access logging, HTTP metrics, CORS, audit context, request
timeouts, body size limits and the JSON content type check. The whole
stack is instrumented with otelhttp.

# Usage

	server := api.NewServer(services, resolver, api.Options{
		Logger:       logger,
		Metrics:      metrics,
		Audit:        auditLogger,
		APILimiter:   middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
		LoginLimiter: middleware.NewRateLimiter(middleware.LoginRateLimitConfig()),
	})
	http.ListenAndServe(":8080", server.Handler())
*/
package api
