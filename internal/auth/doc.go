// Package auth provides API authentication and authorisation for Gray Logic Fleet.
//
// Callers present a signed HS256 JWT access token. The token carries a
// subject and one of two roles:
//   - operator: may start and cancel batches
//   - viewer: may read the device inventory, batches and results
//
// Role to permission mapping is static (compile-time, no database lookup).
// Tokens are issued out of band with "grayfleet token".
package auth
