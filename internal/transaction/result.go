package transaction

import (
	"sync"
	"time"
)

// State is the lifecycle position of a session.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateExchanging
	StateFinalizing
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateExchanging:
		return "exchanging"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "init"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome record of one client in one batch.
//
// It is created empty and incomplete, and finalized exactly once by the
// session that owns it. All accessors are safe to call while the session runs.
type Result struct {
	client Client

	mu        sync.RWMutex
	state     State
	complete  bool
	errors    ErrorSet
	action    Action
	actionErr error
	started   time.Time
	finished  time.Time
}

func newResult(client Client) *Result {
	return &Result{client: client}
}

// Client returns the connection this result belongs to.
func (r *Result) Client() Client {
	return r.client
}

// Complete reports whether the session has finished.
func (r *Result) Complete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.complete
}

// Errors returns the terminal error set. Empty until Complete.
func (r *Result) Errors() ErrorSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errors
}

// OK reports whether the session completed with an all-OK error set.
func (r *Result) OK() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.complete && r.errors.OK()
}

// State returns the current session state.
func (r *Result) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Action returns the post-session action taken. ActionNone until Complete.
func (r *Result) Action() Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.action
}

// ActionErr returns the error from Close or ForceDisconnect, if any.
func (r *Result) ActionErr() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actionErr
}

// Started returns when the session began connecting.
func (r *Result) Started() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// Finished returns when the session reached Done.
func (r *Result) Finished() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished
}

// Duration returns the session run time, or zero while it is still running.
func (r *Result) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.complete {
		return 0
	}
	return r.finished.Sub(r.started)
}

func (r *Result) setState(s State) {
	r.mu.Lock()
	if s == StateConnecting && r.started.IsZero() {
		r.started = time.Now()
	}
	r.state = s
	r.mu.Unlock()
}

// finish publishes the session outcome. Only the first call has any effect.
func (r *Result) finish(errs ErrorSet, action Action, actionErr error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return false
	}
	r.errors = errs
	r.action = action
	r.actionErr = actionErr
	r.state = StateDone
	r.finished = time.Now()
	if r.started.IsZero() {
		r.started = r.finished
	}
	r.complete = true
	return true
}
