package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Transport is the MQTT surface the gateway needs.
// Satisfied by *mqtt.Client; mocked in tests.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	QoS() byte
}

// Logger interface for optional logging.
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

// Gateway correlates requests to protocol gateways with their responses.
//
// Thread Safety: All methods are safe for concurrent use.
type Gateway struct {
	transport Transport
	protocols map[string]bool
	timeout   time.Duration
	topics    mqtt.Topics

	pending   map[string]chan Response
	pendingMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewGateway creates a gateway for the configured protocols.
// Call Start before sending requests.
func NewGateway(transport Transport, cfg config.GatewayConfig) *Gateway {
	protocols := make(map[string]bool, len(cfg.Protocols))
	for _, p := range cfg.Protocols {
		protocols[p] = true
	}
	return &Gateway{
		transport: transport,
		protocols: protocols,
		timeout:   cfg.RequestTimeout,
		pending:   make(map[string]chan Response),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.loggerMu.Lock()
	defer g.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	g.logger = logger
}

func (g *Gateway) getLogger() Logger {
	g.loggerMu.RLock()
	defer g.loggerMu.RUnlock()
	return g.logger
}

// Start subscribes to the response topic of every served protocol.
func (g *Gateway) Start() error {
	for p := range g.protocols {
		topic := g.topics.GatewayResponses(p)
		if err := g.transport.Subscribe(topic, g.transport.QoS(), g.handleResponse); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	g.getLogger().Info("device gateway started", "protocols", len(g.protocols))
	return nil
}

// Stop unsubscribes and fails every pending request with ErrGatewayClosed.
// Safe to call multiple times.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
		for p := range g.protocols {
			if err := g.transport.Unsubscribe(g.topics.GatewayResponses(p)); err != nil {
				g.getLogger().Warn("unsubscribing gateway responses failed", "protocol", p, "error", err)
			}
		}
	})
}

// Serves reports whether protocol is handled by this gateway.
func (g *Gateway) Serves(protocol string) bool {
	return g.protocols[protocol]
}

// Pending returns the number of requests awaiting a response.
func (g *Gateway) Pending() int {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	return len(g.pending)
}

// Request publishes req and waits for the correlated response.
//
// The wait is bounded by ctx, and by gateway.request_timeout when ctx has no
// deadline. A Response with a non-ok status is returned together with its
// *transaction.ProtocolError.
func (g *Gateway) Request(ctx context.Context, protocol string, req Request) (Response, error) {
	if err := g.check(protocol); err != nil {
		return Response{}, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ch := make(chan Response, 1)
	g.pendingMu.Lock()
	g.pending[req.RequestID] = ch
	g.pendingMu.Unlock()
	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, req.RequestID)
		g.pendingMu.Unlock()
	}()

	if err := g.publish(protocol, req); err != nil {
		return Response{}, err
	}

	if _, ok := ctx.Deadline(); !ok && g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	select {
	case resp := <-ch:
		return resp, resp.Err()
	case <-ctx.Done():
		return Response{}, fmt.Errorf("no response to %s request %s: %w", req.Action, req.RequestID, ctx.Err())
	case <-g.done:
		return Response{}, fmt.Errorf("%w: %w", transaction.ErrNoTransport, ErrGatewayClosed)
	}
}

// Notify publishes req without waiting for a response.
func (g *Gateway) Notify(protocol string, req Request) error {
	if err := g.check(protocol); err != nil {
		return err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return g.publish(protocol, req)
}

func (g *Gateway) check(protocol string) error {
	if !g.protocols[protocol] {
		return fmt.Errorf("%w: protocol %q not served by gateway", transaction.ErrNoPort, protocol)
	}
	select {
	case <-g.done:
		return fmt.Errorf("%w: %w", transaction.ErrNoTransport, ErrGatewayClosed)
	default:
	}
	if !g.transport.IsConnected() {
		return fmt.Errorf("%w: broker not connected", transaction.ErrNoTransport)
	}
	return nil
}

func (g *Gateway) publish(protocol string, req Request) error {
	req.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", req.Action, err)
	}

	topic := g.topics.GatewayRequest(protocol, req.RequestID)
	if err := g.transport.Publish(topic, payload, g.transport.QoS(), false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) || errors.Is(err, mqtt.ErrPublishFailed) {
			return fmt.Errorf("%w: %w", transaction.ErrNoTransport, err)
		}
		return fmt.Errorf("publishing %s request: %w", req.Action, err)
	}
	return nil
}

// handleResponse delivers a gateway response to its waiting request.
// Responses nobody waits for (late or unsolicited) are dropped.
func (g *Gateway) handleResponse(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	id, ok := mqtt.RequestIDFromTopic(topic)
	if !ok {
		id = resp.RequestID
	}
	if id == "" {
		return fmt.Errorf("%w: no request id on %s", ErrInvalidResponse, topic)
	}
	if resp.RequestID == "" {
		resp.RequestID = id
	}

	g.pendingMu.Lock()
	ch, waiting := g.pending[id]
	g.pendingMu.Unlock()

	if !waiting {
		g.getLogger().Debug("dropping response without pending request", "request_id", id, "status", resp.Status)
		return nil
	}

	select {
	case ch <- resp:
	default:
		g.getLogger().Debug("dropping duplicate response", "request_id", id)
	}
	return nil
}
