// Package identity turns an authenticated session into an explicit Identity
// value that is handed to every scope, authorization and data call.
//
// There is no process-wide "current user". The HTTP layer resolves the
// bearer token once per request with a Resolver and stores the result in the
// request context only so handlers can pass it on explicitly.
//
// Access tokens are short lived HS256 JWTs that carry nothing but the user
// id; role, tenant and manager are re-read from the account store on every
// resolution so that a role change or reassignment applies on the next
// request. Refresh tokens are opaque random strings stored as SHA-256
// hashes. Firebase ID tokens are accepted as an alternative bearer when a
// FirebaseVerifier is configured.
package identity
