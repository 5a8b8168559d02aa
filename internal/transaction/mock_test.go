package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// mockClient implements Client for testing.
type mockClient struct {
	id string

	mu           sync.Mutex
	errs         ErrorSet
	connectErr   error
	closeErr     error
	connectGate  chan struct{} // if set, Connect waits for it (or ctx)
	connectCalls int
	closeCalls   int
	forceCalls   int
	public       bool
	logs         []string
	panicOnSet   bool // SetErrors panics, outside any attempt
}

func newMockClient(id string) *mockClient {
	return &mockClient{id: id}
}

func (m *mockClient) ID() string { return m.id }

func (m *mockClient) Connect(ctx context.Context, public bool) error {
	m.mu.Lock()
	m.connectCalls++
	m.public = public
	gate := m.connectGate
	err := m.connectErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *mockClient) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return m.closeErr
}

func (m *mockClient) ForceDisconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceCalls++
	return nil
}

func (m *mockClient) Log(level slog.Level, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (m *mockClient) Errors() ErrorSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs
}

func (m *mockClient) SetErrors(errs ErrorSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnSet {
		panic("error state store unavailable")
	}
	m.errs = errs
}

func (m *mockClient) calls() (connect, closeN, force int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls, m.closeCalls, m.forceCalls
}

func (m *mockClient) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// exchangeFunc adapts a function to Operation.
type exchangeFunc func(ctx context.Context, c Client) error

func (f exchangeFunc) Name() string { return "test-exchange" }

func (f exchangeFunc) Exchange(ctx context.Context, c Client) error { return f(ctx, c) }

// succeed marks the client OK, like a real link after a clean exchange.
var succeed = exchangeFunc(func(_ context.Context, c Client) error {
	c.SetErrors(OKSet())
	return nil
})

// byClient runs a per-client behaviour, falling back to succeed.
func byClient(behaviours map[string]exchangeFunc) exchangeFunc {
	return func(ctx context.Context, c Client) error {
		if fn, ok := behaviours[c.ID()]; ok {
			return fn(ctx, c)
		}
		return succeed(ctx, c)
	}
}

// recordingObserver collects observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	sessions []string
	finished []string
}

func (o *recordingObserver) BatchStarted(rs *Results) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, rs.ID())
}

func (o *recordingObserver) SessionFinished(_ *Results, r *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = append(o.sessions, r.Client().ID())
}

func (o *recordingObserver) BatchFinished(rs *Results) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, rs.ID())
}

func (o *recordingObserver) counts() (started, sessions, finished int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.started), len(o.sessions), len(o.finished)
}

func asClients(mocks ...*mockClient) []Client {
	out := make([]Client, len(mocks))
	for i, m := range mocks {
		out[i] = m
	}
	return out
}

// taggedClient is a Client value type that cannot be hashed.
type taggedClient struct {
	id   string
	tags []string
}

func (c taggedClient) ID() string                            { return c.id }
func (c taggedClient) Connect(context.Context, bool) error   { return nil }
func (c taggedClient) Close(context.Context) error           { return nil }
func (c taggedClient) ForceDisconnect(context.Context) error { return nil }
func (c taggedClient) Log(slog.Level, string, ...any)        {}
func (c taggedClient) Errors() ErrorSet                      { return OKSet() }
func (c taggedClient) SetErrors(ErrorSet)                    {}
