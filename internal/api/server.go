package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/history"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fleet/internal/link"
	"github.com/nerrad567/gray-logic-fleet/internal/metrics"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionChecker reports whether a backing connection is up.
// Satisfied by *mqtt.Client.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Transactions *transaction.Server
	Inventory    *link.Inventory
	History      history.Repository // optional: evicted batches are then not found
	Metrics      *metrics.Collector // optional: /metrics/prometheus is then absent
	MQTT         ConnectionChecker  // optional: reported by /health
	Version      string
}

// Server is the HTTP API server for Gray Logic Fleet.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	transactions *transaction.Server
	inventory    *link.Inventory
	history      history.Repository
	metrics      *metrics.Collector
	mqtt         ConnectionChecker
	version      string
	hub          *Hub
	tickets      *ticketStore

	// ops keeps the operation of each live batch so read values can be served.
	ops   map[string]transaction.Operation
	opsMu sync.Mutex

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The hub exists from
// here on so it can be registered as a transaction observer before Start.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Transactions == nil {
		return nil, fmt.Errorf("transaction server is required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("device inventory is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		transactions: deps.Transactions,
		inventory:    deps.Inventory,
		history:      deps.History,
		metrics:      deps.Metrics,
		mqtt:         deps.MQTT,
		version:      deps.Version,
		hub:          NewHub(deps.WS, deps.Logger),
		tickets:      newTicketStore(),
		ops:          make(map[string]transaction.Operation),
	}, nil
}

// Hub returns the WebSocket hub. Register it with transaction.Server.AddObserver
// to relay batch progress.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// It starts the WebSocket hub and the ticket cleanup loop. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub and ticket cleanup
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// trackOperation remembers op for a live batch and forgets batches the
// transaction server no longer retains.
func (s *Server) trackOperation(id string, op transaction.Operation) {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	for known := range s.ops {
		if _, ok := s.transactions.Lookup(known); !ok {
			delete(s.ops, known)
		}
	}
	s.ops[id] = op
}

func (s *Server) operationFor(id string) transaction.Operation {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	return s.ops[id]
}
