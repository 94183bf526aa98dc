// Package httpauth adapts a gourdianguard guard to net/http.
//
// A Guard finds the caller's token in the Authorization header, the _token
// request parameter or a session slot, and exposes the guard's issue, verify,
// refresh and revoke operations on requests. Middleware protects handlers and
// makes the verified claims available through ClaimsFromContext.
package httpauth
