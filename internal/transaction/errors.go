package transaction

import (
	"errors"
	"fmt"
)

// Setup errors returned by Server.Start and Server.Run.
// Failures of individual connections are never returned as errors; they are
// recorded on the connection's Result instead.
var (
	// ErrNoClients is returned when a batch contains no connections.
	ErrNoClients = errors.New("transaction: batch has no clients")

	// ErrNilClient is returned when a batch contains a nil connection.
	ErrNilClient = errors.New("transaction: batch contains a nil client")

	// ErrDuplicateClient is returned when the same connection appears twice in one batch.
	ErrDuplicateClient = errors.New("transaction: client appears more than once in batch")

	// ErrNotComparableClient is returned when a connection cannot be used as a map key,
	// e.g. a struct value holding a slice. Pass a pointer instead.
	ErrNotComparableClient = errors.New("transaction: client is not comparable")

	// ErrNilOperation is returned when no operation is supplied.
	ErrNilOperation = errors.New("transaction: operation is required")

	// ErrServerClosed is returned when a batch is started after Close.
	ErrServerClosed = errors.New("transaction: server closed")
)

// Transport errors that device clients return so that sessions can classify them.
var (
	// ErrNoTransport means the link to the device could not be established or sustained.
	ErrNoTransport = errors.New("transaction: no transport")

	// ErrNoPort means there is no usable port or address for the device.
	ErrNoPort = errors.New("transaction: no port")
)

// ProtocolError is a structured error already classified by the lower protocol
// layer. It carries the code the device (or its gateway) reported.
type ProtocolError struct {
	Code    ErrorCode
	Message string
}

// NewProtocolError creates a ProtocolError with the given code and message.
func NewProtocolError(code ErrorCode, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transaction: protocol error %s", e.Code)
	}
	return fmt.Sprintf("transaction: protocol error %s: %s", e.Code, e.Message)
}
