package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// session runs one client through Connecting → Exchanging → Finalizing → Done.
// It owns exactly one Result and is the only writer of it.
type session struct {
	client        Client
	op            Operation
	result        *Result
	public        bool
	timeout       time.Duration // bounds connect + exchange; 0 disables
	actionTimeout time.Duration // bounds close / force-disconnect; 0 disables
	logger        Logger
}

// panicError carries a value recovered from a collaborator panic.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// run drives the session to Done. It never panics and never returns an error;
// every failure ends up in the Result.
func (s *session) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.recoverPanic(ctx, r)
		}
	}()

	s.result.setState(StateConnecting)

	attemptCtx, cancel := s.attemptContext(ctx)
	// A batch cancelled while this session waited for a slot never connects.
	err := attemptCtx.Err()
	if err == nil {
		err = s.attempt(attemptCtx, func(ctx context.Context) error {
			return s.client.Connect(ctx, s.public)
		})
	}
	if err == nil {
		s.result.setState(StateExchanging)
		err = s.attempt(attemptCtx, func(ctx context.Context) error {
			return s.op.Exchange(ctx, s.client)
		})
	}
	cancel()

	s.result.setState(StateFinalizing)

	if err != nil {
		entry := failureEntry(err)
		if entry.Code == CodeUnknown {
			s.client.Log(slog.LevelInfo, "unhandled error during transaction",
				"operation", s.op.Name(),
				"error", err,
			)
		}
		s.client.SetErrors(NewErrorSet(entry))
	}

	// Snapshot: the set copied here is what the Result owns from now on.
	errs := NewErrorSet(s.client.Errors().Entries()...)
	action := Classify(errs)
	actionErr := s.act(ctx, action)

	s.result.finish(errs, action, actionErr)

	s.logger.Debug("session finished",
		"device_id", s.client.ID(),
		"errors", errs.String(),
		"action", action.String(),
	)
}

// recoverPanic finishes the Result after a collaborator panicked outside an
// attempt. The outcome is UNKNOWN, so the link is force-disconnected. Nothing
// is done if the Result was already finished.
func (s *session) recoverPanic(ctx context.Context, value any) {
	if s.result.Complete() {
		s.logger.Error("session panic recovered after finish", "panic", value)
		return
	}
	s.logger.Error("session panic recovered", "panic", value)

	errs := NewErrorSet(Error{Code: CodeUnknown, Message: panicError{value}.Error()})
	var actionErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				actionErr = fmt.Errorf("%s: %w", ActionForceDisconnect, panicError{r})
			}
		}()
		actionErr = s.act(ctx, ActionForceDisconnect)
	}()
	s.result.finish(errs, ActionForceDisconnect, actionErr)
}

// attemptContext derives the context bounding connect + exchange.
func (s *session) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// attempt runs fn and returns its error, a recovered panic, or ctx.Err() if
// ctx ends first. A client that ignores ctx is abandoned rather than waited on.
func (s *session) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- panicError{r}
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// act performs the classified post-session action.
// It runs on a context detached from cancellation so that shutdown still
// closes links cleanly.
func (s *session) act(ctx context.Context, action Action) error {
	var fn func(ctx context.Context) error
	switch action {
	case ActionGracefulClose:
		fn = s.client.Close
	case ActionForceDisconnect:
		fn = s.client.ForceDisconnect
	default:
		return nil
	}

	base := context.WithoutCancel(ctx)
	var (
		actx   context.Context
		cancel context.CancelFunc
	)
	if s.actionTimeout > 0 {
		actx, cancel = context.WithTimeout(base, s.actionTimeout)
	} else {
		actx, cancel = context.WithCancel(base)
	}
	defer cancel()

	if err := s.attempt(actx, fn); err != nil {
		s.logger.Warn("post-session action failed",
			"device_id", s.client.ID(),
			"action", action.String(),
			"error", err,
		)
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// failureEntry converts a connect or exchange failure into its ErrorSet entry.
func failureEntry(err error) Error {
	var (
		protoErr *ProtocolError
		netErr   net.Error
		opErr    *net.OpError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return Error{Code: CodeTimeout, Message: err.Error()}
	case errors.As(err, &protoErr):
		return Error{Code: protoErr.Code, Message: protoErr.Message}
	case errors.Is(err, ErrNoPort):
		return Error{Code: CodeNoPort, Message: err.Error()}
	case errors.Is(err, ErrNoTransport), errors.As(err, &opErr):
		return Error{Code: CodeNoTransport, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return Error{Code: CodeAbort, Message: err.Error()}
	default:
		return Error{Code: CodeUnknown, Message: err.Error()}
	}
}
