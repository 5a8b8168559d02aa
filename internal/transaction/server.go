package transaction

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server defaults.
const (
	// defaultRetain is how many batches Lookup can find when Options.Retain is 0.
	defaultRetain = 100

	// defaultActionTimeout bounds Close / ForceDisconnect when Options.ActionTimeout is 0.
	defaultActionTimeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	// SessionTimeout bounds connect + exchange of each session.
	// Zero leaves timeouts entirely to the client and operation.
	SessionTimeout time.Duration

	// ActionTimeout bounds the post-session Close or ForceDisconnect.
	// Default: 10 seconds.
	ActionTimeout time.Duration

	// MaxConcurrent limits how many sessions of one batch run at once.
	// Zero means one goroutine per client.
	MaxConcurrent int

	// Public requests the public (unauthenticated) association on Connect.
	Public bool

	// Retain is how many batches are kept for Lookup and Batches.
	// Running batches are never evicted. Default: 100.
	Retain int
}

// Server (the transaction server) fans one operation out over a batch of
// clients. It owns the context its sessions run on, so Start can be called
// from any goroutine and the batch outlives the caller's request.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	opts Options

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.RWMutex
	closed  bool
	batches map[string]*Batch
	order   []string // batch ids, oldest first

	observers []Observer
	obsMu     sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Batch is the handle of one running or finished batch.
type Batch struct {
	results *Results
	done    chan struct{}
	cancel  context.CancelFunc
}

// Results returns the live results aggregate of the batch.
func (b *Batch) Results() *Results {
	return b.results
}

// Done is closed once every session has finished and observers were notified.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch has finished or ctx ends.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the sessions that are still connecting or exchanging.
// They finish with ABORT and are force-disconnected.
func (b *Batch) Cancel() {
	b.cancel()
}

func (b *Batch) finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// NewServer creates a transaction server. Call Close to stop it.
func NewServer(opts Options) *Server {
	if opts.Retain <= 0 {
		opts.Retain = defaultRetain
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.MaxConcurrent < 0 {
		opts.MaxConcurrent = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:      opts,
		ctx:       ctx,
		ctxCancel: cancel,
		batches:   make(map[string]*Batch),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for server and session events.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Server) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// AddObserver registers an observer for batches started after this call.
func (s *Server) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// Options returns the effective options.
func (s *Server) Options() Options {
	return s.opts
}

// Start validates the batch, launches one session per client and returns
// immediately. Poll Results().IsComplete() or wait on the Batch.
//
// Clients must be comparable (typically pointers) and appear at most once.
//
// Returns:
//   - *Batch: Handle of the running batch
//   - error: Setup errors only (ErrNoClients, ErrNilClient, ErrDuplicateClient,
//     ErrNilOperation, ErrServerClosed)
func (s *Server) Start(clients []Client, op Operation, name string) (*Batch, error) {
	if err := validateBatch(clients, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	ctx, cancel := context.WithCancel(s.ctx)
	b := &Batch{
		results: newResults(clients, op.Name(), name),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	s.batches[b.results.ID()] = b
	s.order = append(s.order, b.results.ID())
	s.pruneLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.obsMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	logger := s.getLogger()
	logger.Info("batch started",
		"batch_id", b.results.ID(),
		"name", name,
		"operation", op.Name(),
		"clients", len(clients),
	)
	notify(logger, observers, func(o Observer) { o.BatchStarted(b.results) })

	go s.runBatch(ctx, b, op, observers, logger)

	return b, nil
}

// Run starts a batch and waits for it to finish.
//
// If ctx ends first, the partial results are returned together with ctx.Err();
// the batch keeps running on the server's own context.
func (s *Server) Run(ctx context.Context, clients []Client, op Operation, name string) (*Results, error) {
	b, err := s.Start(clients, op, name)
	if err != nil {
		return nil, err
	}
	if err := b.Wait(ctx); err != nil {
		return b.Results(), err
	}
	return b.Results(), nil
}

// runBatch fans the sessions out and notifies observers as they finish.
func (s *Server) runBatch(ctx context.Context, b *Batch, op Operation, observers []Observer, logger Logger) {
	defer s.wg.Done()
	defer close(b.done)
	defer b.cancel()

	// Plain group, not WithContext: one client's failure must not cancel the others.
	var g errgroup.Group
	if s.opts.MaxConcurrent > 0 {
		g.SetLimit(s.opts.MaxConcurrent)
	}

	rs := b.results
	for _, r := range rs.results {
		g.Go(func() error {
			sess := &session{
				client:        r.client,
				op:            op,
				result:        r,
				public:        s.opts.Public,
				timeout:       s.opts.SessionTimeout,
				actionTimeout: s.opts.ActionTimeout,
				logger:        logger,
			}
			sess.run(ctx)
			notify(logger, observers, func(o Observer) { o.SessionFinished(rs, r) })
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // sessions never return errors

	summary := rs.Summary()
	logger.Info("batch finished",
		"batch_id", summary.ID,
		"name", summary.Name,
		"ok", summary.OK,
		"nok", summary.NOK,
		"duration_ms", time.Since(summary.Created).Milliseconds(),
	)
	notify(logger, observers, func(o Observer) { o.BatchFinished(rs) })
}

// Lookup returns a retained batch by id.
func (s *Server) Lookup(id string) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	return b, ok
}

// Batches returns the retained batches, newest first.
func (s *Server) Batches() []*Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Batch, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.batches[s.order[i]])
	}
	return out
}

// Close cancels running sessions (they finish with ABORT), waits for every
// batch to finish and rejects further batches. Safe to call multiple times.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.ctxCancel()
		s.wg.Wait()
	})
	return nil
}

// pruneLocked evicts the oldest finished batches beyond the retain limit.
func (s *Server) pruneLocked() {
	excess := len(s.order) - s.opts.Retain
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && s.batches[id].finished() {
			delete(s.batches, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// validateBatch checks the batch before anything is started.
func validateBatch(clients []Client, op Operation) error {
	if op == nil {
		return ErrNilOperation
	}
	if len(clients) == 0 {
		return ErrNoClients
	}
	seen := make(map[Client]struct{}, len(clients))
	for i, c := range clients {
		if c == nil {
			return fmt.Errorf("%w: index %d", ErrNilClient, i)
		}
		if !reflect.ValueOf(c).Comparable() {
			return fmt.Errorf("%w: index %d (%T)", ErrNotComparableClient, i, c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateClient, c.ID())
		}
		seen[c] = struct{}{}
	}
	return nil
}

// notify calls fn for every observer, recovering observer panics.
func notify(logger Logger, observers []Observer, fn func(o Observer)) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("observer panic recovered", "panic", r)
				}
			}()
			fn(o)
		}()
	}
}
