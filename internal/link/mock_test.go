package link

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/mqtt"
)

// responder decides the gateway answer to a request; nil means no answer.
type responder func(req Request) *Response

// fakeTransport is an in-memory broker plus a scripted protocol gateway.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	published    []publishedRequest
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	respond      responder
}

type publishedRequest struct {
	topic string
	req   Request
}

func newFakeTransport(respond responder) *fakeTransport {
	return &fakeTransport{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
		respond:   respond,
	}
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	if f.publishErr != nil {
		err := f.publishErr
		f.mu.Unlock()
		return err
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		f.mu.Unlock()
		return err
	}
	f.published = append(f.published, publishedRequest{topic: topic, req: req})
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return nil
	}
	resp := respond(req)
	if resp == nil {
		return nil
	}

	// graylogic/request/{protocol}/{id} -> graylogic/response/{protocol}/{id}
	parts := strings.Split(topic, "/")
	protocol := parts[2]
	respTopic := mqtt.Topics{}.GatewayResponse(protocol, req.RequestID)
	payload, _ = json.Marshal(resp) //nolint:errcheck // test fixture

	f.mu.Lock()
	handler := f.handlers[mqtt.Topics{}.GatewayResponses(protocol)]
	f.mu.Unlock()
	if handler != nil {
		go handler(respTopic, payload) //nolint:errcheck // mirrors paho dispatch
	}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) QoS() byte { return 1 }

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeTransport) setPublishErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}

func (f *fakeTransport) requests() []publishedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedRequest(nil), f.published...)
}

func (f *fakeTransport) actions() []Action {
	var out []Action
	for _, p := range f.requests() {
		out = append(out, p.req.Action)
	}
	return out
}

// answerOK acknowledges every request and echoes read objects as values.
func answerOK(req Request) *Response {
	resp := &Response{RequestID: req.RequestID, Status: StatusOK}
	if objs, ok := req.Body["objects"].([]any); ok {
		resp.Values = make(map[string]any, len(objs))
		for _, o := range objs {
			resp.Values[o.(string)] = 1.0
		}
	}
	return resp
}

func startGateway(t *testing.T, transport *fakeTransport, cfg config.GatewayConfig) *Gateway {
	t.Helper()
	if len(cfg.Protocols) == 0 {
		cfg.Protocols = []string{"dlms"}
	}
	gw := NewGateway(transport, cfg)
	if err := gw.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(gw.Stop)
	return gw
}
