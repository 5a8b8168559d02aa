package auth

import "errors"

// Role represents an authorisation tier of an API caller.
type Role string

const (
	// RoleViewer has read-only access to devices, batches and results.
	RoleViewer Role = "viewer"

	// RoleOperator can do everything a viewer can, plus start and cancel batches.
	RoleOperator Role = "operator"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Domain errors for the auth package.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
