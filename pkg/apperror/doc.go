// Package apperror defines the error taxonomy shared by every layer of crmgate.
//
// Each error carries a Kind. Stores, the authorization gate, HTTP handlers and
// the API client all speak the same kinds, so a PermissionDenied raised by the
// gate on the server surfaces as a PermissionDenied from apiclient on the
// caller's side.
//
// Usage:
//
//	if apperror.IsNotFound(err) {
//		// record absent inside a valid scope
//	}
//	status := apperror.HTTPStatus(err)
package apperror
