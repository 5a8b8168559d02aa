package operation

import "errors"

// Sentinel errors for building operations.
var (
	// ErrUnknownType indicates an operation type Parse does not know.
	ErrUnknownType = errors.New("operation: unknown type")

	// ErrInvalidSpec indicates an operation description missing required fields.
	ErrInvalidSpec = errors.New("operation: invalid spec")
)
