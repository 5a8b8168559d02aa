package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

func TestGateway_StartStop(t *testing.T) {
	transport := newFakeTransport(nil)
	gw := NewGateway(transport, config.GatewayConfig{Protocols: []string{"dlms", "modbus"}})

	if err := gw.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, p := range []string{"dlms", "modbus"} {
		if _, ok := transport.handlers[mqtt.Topics{}.GatewayResponses(p)]; !ok {
			t.Errorf("no subscription for %s responses", p)
		}
	}
	if !gw.Serves("dlms") || gw.Serves("knx") {
		t.Error("Serves() does not match configured protocols")
	}

	gw.Stop()
	gw.Stop()
	if len(transport.unsubscribed) != 2 {
		t.Errorf("unsubscribed = %v, want 2 topics", transport.unsubscribed)
	}
}

func TestGateway_Request(t *testing.T) {
	transport := newFakeTransport(answerOK)
	gw := startGateway(t, transport, config.GatewayConfig{})

	resp, err := gw.Request(context.Background(), "dlms", Request{
		DeviceID: "meter-1",
		Address:  "tcp://10.0.0.5:4059",
		Action:   ActionRead,
		Body:     map[string]any{"objects": []string{"1.0.1.8.0.255"}},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !resp.OK() {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if resp.Values["1.0.1.8.0.255"] != 1.0 {
		t.Errorf("Values = %v", resp.Values)
	}

	reqs := transport.requests()
	if len(reqs) != 1 {
		t.Fatalf("published %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	if got.req.RequestID == "" {
		t.Error("request id not generated")
	}
	topics := mqtt.Topics{}
	if got.topic != topics.GatewayRequest("dlms", got.req.RequestID) {
		t.Errorf("topic = %s", got.topic)
	}
	if got.req.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if gw.Pending() != 0 {
		t.Errorf("Pending() = %d after response", gw.Pending())
	}
}

func TestGateway_RequestFailures(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		setup    func(f *fakeTransport)
		respond  responder
		wantIs   []error
		wantCode transaction.ErrorCode
	}{
		{
			name:     "protocol not served",
			protocol: "knx",
			wantIs:   []error{transaction.ErrNoPort},
		},
		{
			name:     "broker disconnected",
			protocol: "dlms",
			setup:    func(f *fakeTransport) { f.setConnected(false) },
			wantIs:   []error{transaction.ErrNoTransport},
		},
		{
			name:     "publish not connected",
			protocol: "dlms",
			setup:    func(f *fakeTransport) { f.setPublishErr(mqtt.ErrNotConnected) },
			wantIs:   []error{transaction.ErrNoTransport, mqtt.ErrNotConnected},
		},
		{
			name:     "publish failed",
			protocol: "dlms",
			setup:    func(f *fakeTransport) { f.setPublishErr(mqtt.ErrPublishFailed) },
			wantIs:   []error{transaction.ErrNoTransport},
		},
		{
			name:     "device refuses",
			protocol: "dlms",
			respond: func(req Request) *Response {
				return &Response{RequestID: req.RequestID, Status: "no_access", Message: "bad password"}
			},
			wantCode: transaction.CodeNoAccess,
		},
		{
			name:     "empty status",
			protocol: "dlms",
			respond: func(req Request) *Response {
				return &Response{RequestID: req.RequestID}
			},
			wantCode: transaction.CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport(tt.respond)
			if tt.setup != nil {
				tt.setup(transport)
			}
			gw := startGateway(t, transport, config.GatewayConfig{RequestTimeout: time.Second})

			_, err := gw.Request(context.Background(), tt.protocol, Request{DeviceID: "meter-1", Action: ActionRead})
			if err == nil {
				t.Fatal("Request() expected error")
			}
			for _, target := range tt.wantIs {
				if !errors.Is(err, target) {
					t.Errorf("error %v is not %v", err, target)
				}
			}
			if tt.wantCode != "" {
				var protoErr *transaction.ProtocolError
				if !errors.As(err, &protoErr) {
					t.Fatalf("error %v is not a ProtocolError", err)
				}
				if protoErr.Code != tt.wantCode {
					t.Errorf("Code = %s, want %s", protoErr.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestGateway_RequestTimeout(t *testing.T) {
	t.Run("caller deadline", func(t *testing.T) {
		gw := startGateway(t, newFakeTransport(nil), config.GatewayConfig{RequestTimeout: time.Hour})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := gw.Request(ctx, "dlms", Request{Action: ActionAssociate})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want DeadlineExceeded", err)
		}
		if gw.Pending() != 0 {
			t.Errorf("Pending() = %d after timeout", gw.Pending())
		}
	})

	t.Run("default request timeout", func(t *testing.T) {
		gw := startGateway(t, newFakeTransport(nil), config.GatewayConfig{RequestTimeout: 30 * time.Millisecond})

		start := time.Now()
		_, err := gw.Request(context.Background(), "dlms", Request{Action: ActionAssociate})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want DeadlineExceeded", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("default timeout not applied")
		}
	})
}

func TestGateway_StopFailsPending(t *testing.T) {
	transport := newFakeTransport(nil)
	gw := startGateway(t, transport, config.GatewayConfig{})

	errCh := make(chan error, 1)
	go func() {
		_, err := gw.Request(context.Background(), "dlms", Request{Action: ActionAssociate})
		errCh <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for gw.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	gw.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrGatewayClosed) || !errors.Is(err, transaction.ErrNoTransport) {
			t.Errorf("error = %v, want ErrGatewayClosed wrapped in ErrNoTransport", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released by Stop")
	}

	if err := gw.Notify("dlms", Request{Action: ActionAbort}); !errors.Is(err, ErrGatewayClosed) {
		t.Errorf("Notify() after Stop error = %v", err)
	}
}

func TestGateway_HandleResponse(t *testing.T) {
	gw := NewGateway(newFakeTransport(nil), config.GatewayConfig{Protocols: []string{"dlms"}})

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr bool
	}{
		{"invalid json", "graylogic/response/dlms/r1", "{", true},
		{"unsolicited", "graylogic/response/dlms/r1", `{"status":"ok"}`, false},
		{"id from payload", "graylogic/other", `{"request_id":"r2","status":"ok"}`, false},
		{"no id anywhere", "graylogic/other", `{"status":"ok"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gw.handleResponse(tt.topic, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("handleResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("error = %v, want ErrInvalidResponse", err)
			}
		})
	}
}

func TestGateway_DuplicateResponseDropped(t *testing.T) {
	gw := NewGateway(newFakeTransport(nil), config.GatewayConfig{Protocols: []string{"dlms"}})

	ch := make(chan Response, 1)
	gw.pending["r1"] = ch

	for range 2 {
		if err := gw.handleResponse("graylogic/response/dlms/r1", []byte(`{"status":"ok"}`)); err != nil {
			t.Fatalf("handleResponse() error = %v", err)
		}
	}
	resp := <-ch
	if resp.RequestID != "r1" {
		t.Errorf("RequestID = %q, want filled from topic", resp.RequestID)
	}
	if len(ch) != 0 {
		t.Error("duplicate response delivered")
	}
}

func TestResponse_Err(t *testing.T) {
	tests := []struct {
		status string
		want   transaction.ErrorCode
	}{
		{"ok", ""},
		{"OK", ""},
		{"missing_object", transaction.CodeMissingObject},
		{" version_error ", transaction.CodeVersionError},
		{"", transaction.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			err := Response{Status: tt.status, Message: "m"}.Err()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Err() = %v, want nil", err)
				}
				return
			}
			var protoErr *transaction.ProtocolError
			if !errors.As(err, &protoErr) || protoErr.Code != tt.want {
				t.Errorf("Err() = %v, want code %s", err, tt.want)
			}
		})
	}
}
