package transaction

import (
	"context"
	"log/slog"
)

// Client is one device connection. The caller owns its lifecycle; the server
// only borrows it for the duration of a session.
//
// Connect, Close, ForceDisconnect and the Operation's Exchange may block and
// should honour ctx. A Connect or Exchange that outlives its context is
// abandoned, not waited on: it may still be running when Close or
// ForceDisconnect is called, so implementations must guard their state.
// The error state is owned by the connection, but a session overwrites it
// when it catches a failure.
type Client interface {
	// ID identifies the device in logs, results and reports.
	ID() string

	// Connect opens the link. public selects the unauthenticated public association.
	Connect(ctx context.Context, public bool) error

	// Close releases an open link gracefully.
	Close(ctx context.Context) error

	// ForceDisconnect drops the link without a release handshake.
	ForceDisconnect(ctx context.Context) error

	// Log writes a device-scoped log line.
	Log(level slog.Level, msg string, args ...any)

	// Errors returns the current error state.
	Errors() ErrorSet

	// SetErrors replaces the current error state.
	SetErrors(ErrorSet)
}

// Operation is the unit of domain work run against every client of a batch.
// A single instance is shared by all sessions and must be safe for concurrent use.
type Operation interface {
	// Name is used in logs and reports.
	Name() string

	// Exchange performs the work on an already connected client.
	Exchange(ctx context.Context, client Client) error
}

// Logger is the logging interface used by the server.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
