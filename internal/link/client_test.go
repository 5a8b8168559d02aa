package link

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

func testDevice(id string) config.DeviceConfig {
	return config.DeviceConfig{ID: id, Name: "Meter " + id, Protocol: "dlms", Address: "tcp://10.0.0.5:4059/" + id}
}

// syncBuffer guards log output written from session goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(w *syncBuffer) *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, "test", w)
}

func TestClient_Connect(t *testing.T) {
	transport := newFakeTransport(answerOK)
	gw := startGateway(t, transport, config.GatewayConfig{})
	c := NewClient(testDevice("meter-1"), gw, nil)

	if err := c.Connect(context.Background(), true); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.Associated() {
		t.Error("Associated() = false after Connect()")
	}
	if !c.Errors().OK() {
		t.Errorf("Errors() = %s, want OK", c.Errors())
	}

	reqs := transport.requests()
	if len(reqs) != 1 {
		t.Fatalf("published %d requests, want 1", len(reqs))
	}
	req := reqs[0].req
	if req.Action != ActionAssociate || !req.Public {
		t.Errorf("request = %+v, want public associate", req)
	}
	if req.DeviceID != "meter-1" || req.Address != testDevice("meter-1").Address {
		t.Errorf("request addressed to %s at %s", req.DeviceID, req.Address)
	}
}

func TestClient_ConnectFailures(t *testing.T) {
	t.Run("missing address", func(t *testing.T) {
		transport := newFakeTransport(answerOK)
		gw := startGateway(t, transport, config.GatewayConfig{})
		dev := testDevice("meter-1")
		dev.Address = ""

		err := NewClient(dev, gw, nil).Connect(context.Background(), false)
		if !errors.Is(err, transaction.ErrNoPort) {
			t.Errorf("Connect() error = %v, want ErrNoPort", err)
		}
		if len(transport.requests()) != 0 {
			t.Error("request published for a device without address")
		}
	})

	t.Run("refused association", func(t *testing.T) {
		transport := newFakeTransport(func(req Request) *Response {
			return &Response{RequestID: req.RequestID, Status: "no_access", Message: "wrong key"}
		})
		gw := startGateway(t, transport, config.GatewayConfig{})
		c := NewClient(testDevice("meter-1"), gw, nil)

		if err := c.Connect(context.Background(), false); err == nil {
			t.Fatal("Connect() expected error")
		}
		if c.Associated() {
			t.Error("Associated() = true after refused association")
		}
		if !c.Errors().Has(transaction.CodeNoAccess) {
			t.Errorf("Errors() = %s, want NO_ACCESS", c.Errors())
		}
	})
}

func TestClient_Request(t *testing.T) {
	transport := newFakeTransport(answerOK)
	gw := startGateway(t, transport, config.GatewayConfig{})
	c := NewClient(testDevice("meter-1"), gw, nil)

	_, err := c.Request(context.Background(), ActionRead, nil)
	if !errors.Is(err, ErrNotAssociated) {
		t.Fatalf("Request() before Connect error = %v, want ErrNotAssociated", err)
	}

	if err := c.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	resp, err := c.Request(context.Background(), ActionRead, map[string]any{"objects": []string{"0.0.1.0.0.255"}})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, ok := resp.Values["0.0.1.0.0.255"]; !ok {
		t.Errorf("Values = %v", resp.Values)
	}
}

func TestClient_CloseAndForceDisconnect(t *testing.T) {
	t.Run("close releases only when associated", func(t *testing.T) {
		transport := newFakeTransport(answerOK)
		gw := startGateway(t, transport, config.GatewayConfig{})
		c := NewClient(testDevice("meter-1"), gw, nil)

		if err := c.Close(context.Background()); err != nil {
			t.Fatalf("Close() on unassociated link error = %v", err)
		}
		if len(transport.requests()) != 0 {
			t.Fatal("release sent for unassociated link")
		}

		if err := c.Connect(context.Background(), false); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := c.Close(context.Background()); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if got := transport.actions(); len(got) != 2 || got[1] != ActionRelease {
			t.Errorf("actions = %v, want [associate release]", got)
		}
		if c.Associated() {
			t.Error("Associated() = true after Close()")
		}
	})

	t.Run("force disconnect does not wait", func(t *testing.T) {
		answered := make(chan struct{})
		transport := newFakeTransport(func(req Request) *Response {
			if req.Action == ActionAbort {
				return nil
			}
			return answerOK(req)
		})
		gw := startGateway(t, transport, config.GatewayConfig{RequestTimeout: time.Hour})
		c := NewClient(testDevice("meter-1"), gw, nil)
		if err := c.Connect(context.Background(), false); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		go func() {
			_ = c.ForceDisconnect(context.Background()) //nolint:errcheck // checked via actions
			close(answered)
		}()
		select {
		case <-answered:
		case <-time.After(2 * time.Second):
			t.Fatal("ForceDisconnect() waited for a response")
		}

		if got := transport.actions(); got[len(got)-1] != ActionAbort {
			t.Errorf("actions = %v, want abort last", got)
		}
		if gw.Pending() != 0 {
			t.Errorf("Pending() = %d, abort must not register a request", gw.Pending())
		}
	})

	t.Run("force disconnect clears state when broker is down", func(t *testing.T) {
		transport := newFakeTransport(answerOK)
		gw := startGateway(t, transport, config.GatewayConfig{})
		c := NewClient(testDevice("meter-1"), gw, nil)
		if err := c.Connect(context.Background(), false); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		transport.setConnected(false)
		err := c.ForceDisconnect(context.Background())
		if !errors.Is(err, transaction.ErrNoTransport) {
			t.Errorf("ForceDisconnect() error = %v, want ErrNoTransport", err)
		}
		if c.Associated() {
			t.Error("Associated() = true after ForceDisconnect()")
		}
	})
}

func TestClient_Log(t *testing.T) {
	var buf syncBuffer
	gw := NewGateway(newFakeTransport(nil), config.GatewayConfig{Protocols: []string{"dlms"}})
	c := NewClient(testDevice("meter-9"), gw, testLogger(&buf))

	c.Log(slog.LevelInfo, "unhandled error during transaction", "error", "boom")

	out := buf.String()
	for _, want := range []string{`"device_id":"meter-9"`, `"protocol":"dlms"`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

// readOp is a minimal operation that reads one object through the link.
type readOp struct{}

func (readOp) Name() string { return "read" }

func (readOp) Exchange(ctx context.Context, c transaction.Client) error {
	r, ok := c.(Requester)
	if !ok {
		return transaction.NewProtocolError(transaction.CodeIDError, "not a device link")
	}
	_, err := r.Request(ctx, ActionRead, map[string]any{"objects": []string{"1.0.1.8.0.255"}})
	return err
}

func TestClient_InBatch(t *testing.T) {
	transport := newFakeTransport(func(req Request) *Response {
		if req.DeviceID == "meter-2" && req.Action == ActionRead {
			return &Response{RequestID: req.RequestID, Status: "missing_object", Message: "no such register"}
		}
		if req.DeviceID == "meter-3" {
			return nil
		}
		return answerOK(req)
	})
	gw := startGateway(t, transport, config.GatewayConfig{})

	var buf syncBuffer
	inv := NewInventory([]config.DeviceConfig{testDevice("meter-1"), testDevice("meter-2"), testDevice("meter-3")}, gw, testLogger(&buf))
	clients, err := inv.Clients(nil)
	if err != nil {
		t.Fatalf("Clients() error = %v", err)
	}

	srv := transaction.NewServer(transaction.Options{SessionTimeout: 200 * time.Millisecond, ActionTimeout: time.Second})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := srv.Run(ctx, clients, readOp{}, "nightly read")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]struct {
		code   transaction.ErrorCode
		action transaction.Action
		last   Action
	}{
		"meter-1": {transaction.CodeOK, transaction.ActionGracefulClose, ActionRelease},
		"meter-2": {transaction.CodeMissingObject, transaction.ActionGracefulClose, ActionRelease},
		"meter-3": {transaction.CodeTimeout, transaction.ActionForceDisconnect, ActionAbort},
	}
	for id, w := range want {
		r := results.ByID(id)
		if r == nil {
			t.Fatalf("no result for %s", id)
		}
		if !r.Errors().Has(w.code) {
			t.Errorf("%s errors = %s, want %s", id, r.Errors(), w.code)
		}
		if r.Action() != w.action {
			t.Errorf("%s action = %s, want %s", id, r.Action(), w.action)
		}
	}

	last := make(map[string]Action)
	for _, p := range transport.requests() {
		last[p.req.DeviceID] = p.req.Action
	}
	for id, w := range want {
		if last[id] != w.last {
			t.Errorf("%s last gateway action = %s, want %s", id, last[id], w.last)
		}
	}
}

func TestInventory(t *testing.T) {
	gw := NewGateway(newFakeTransport(nil), config.GatewayConfig{Protocols: []string{"dlms"}})
	inv := NewInventory([]config.DeviceConfig{testDevice("a"), testDevice("b")}, gw, nil)

	if inv.Len() != 2 {
		t.Errorf("Len() = %d, want 2", inv.Len())
	}
	if _, ok := inv.Device("b"); !ok {
		t.Error("Device(b) not found")
	}

	t.Run("selected ids keep order", func(t *testing.T) {
		clients, err := inv.Clients([]string{"b", "a"})
		if err != nil {
			t.Fatalf("Clients() error = %v", err)
		}
		if clients[0].ID() != "b" || clients[1].ID() != "a" {
			t.Errorf("order = %s,%s", clients[0].ID(), clients[1].ID())
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		if _, err := inv.Clients([]string{"a", "zzz"}); !errors.Is(err, ErrUnknownDevice) {
			t.Errorf("Clients() error = %v, want ErrUnknownDevice", err)
		}
	})

	t.Run("repeated device", func(t *testing.T) {
		if _, err := inv.Clients([]string{"a", "b", "a"}); !errors.Is(err, transaction.ErrDuplicateClient) {
			t.Errorf("Clients() error = %v, want ErrDuplicateClient", err)
		}
	})

	t.Run("fresh links per call", func(t *testing.T) {
		first, _ := inv.Clients(nil)  //nolint:errcheck // nil ids never fail
		second, _ := inv.Clients(nil) //nolint:errcheck // nil ids never fail
		if first[0] == second[0] {
			t.Error("Clients() reused a link across calls")
		}
		first[0].SetErrors(transaction.OKSet())
		if second[0].Errors().Len() != 0 {
			t.Error("error state shared across calls")
		}
	})
}

var _ Transport = (*mqtt.Client)(nil)
