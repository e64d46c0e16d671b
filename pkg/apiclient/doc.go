// Package apiclient is a typed Go client for the CRM REST API.
//
// Every call unwraps the ResponseDto envelope. Error envelopes and non-2xx
// statuses become apperror kinds, so callers can use apperror.IsNotFound,
// apperror.IsPermissionDenied and friends on the result. Paginated
// endpoints may answer with a bare array or a PagedResult; GetPage
// normalizes both into a paging.Page.
//
// GET requests are retried with exponential backoff on transport failures
// and 502/503/504. Writes are never retried.
//
// Authentication uses golang.org/x/oauth2 token sources. WithToken sends a
// fixed bearer; NewSessionTokenSource rotates an expired access token
// through /api/User/Refresh.
package apiclient
