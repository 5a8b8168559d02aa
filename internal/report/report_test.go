package report

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

type stubClient struct {
	id         string
	connectErr error

	mu   sync.Mutex
	errs transaction.ErrorSet
}

func (c *stubClient) ID() string { return c.id }

func (c *stubClient) Connect(context.Context, bool) error {
	if c.connectErr == nil {
		c.SetErrors(transaction.OKSet())
	}
	return c.connectErr
}

func (c *stubClient) Close(context.Context) error           { return nil }
func (c *stubClient) ForceDisconnect(context.Context) error { return errors.New("link already gone") }
func (c *stubClient) Log(slog.Level, string, ...any)        {}

func (c *stubClient) Errors() transaction.ErrorSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}

func (c *stubClient) SetErrors(errs transaction.ErrorSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = errs
}

type noopOperation struct{}

func (noopOperation) Name() string                                      { return "ping" }
func (noopOperation) Exchange(context.Context, transaction.Client) error { return nil }

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, payload: payload, retained: retained})
	return f.err
}

func (f *fakePublisher) byTopic() map[string][]published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]published)
	for _, m := range f.msgs {
		out[m.topic] = append(out[m.topic], m)
	}
	return out
}

type fakeWriter struct {
	mu        sync.Mutex
	outcomes  []influxdb.SessionOutcome
	summaries []influxdb.BatchSummary
}

func (f *fakeWriter) WriteSessionOutcome(o influxdb.SessionOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
}

func (f *fakeWriter) WriteBatchSummary(s influxdb.BatchSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
}

type countingLogger struct {
	mu sync.Mutex
	n  int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
}

func runBatch(t *testing.T, observers ...transaction.Observer) *transaction.Results {
	t.Helper()
	srv := transaction.NewServer(transaction.Options{SessionTimeout: time.Second})
	t.Cleanup(func() { srv.Close() })
	for _, o := range observers {
		srv.AddObserver(o)
	}

	clients := []transaction.Client{
		&stubClient{id: "meter-1"},
		&stubClient{id: "meter-2", connectErr: context.DeadlineExceeded},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rs, err := srv.Run(ctx, clients, noopOperation{}, "nightly")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return rs
}

func TestNewResultMessage(t *testing.T) {
	rs := runBatch(t)

	ok := NewResultMessage(rs, rs.ByID("meter-1"))
	if !ok.OK || !ok.Complete || ok.Action != "graceful_close" || ok.Operation != "ping" {
		t.Errorf("meter-1 message = %+v", ok)
	}
	if ok.StartedAt == nil || ok.FinishedAt == nil {
		t.Error("timestamps missing on a complete result")
	}

	nok := NewResultMessage(rs, rs.ByID("meter-2"))
	if nok.OK || !nok.Errors.Has(transaction.CodeTimeout) {
		t.Errorf("meter-2 message = %+v", nok)
	}
	if nok.Action != "force_disconnect" || nok.ActionError == "" {
		t.Errorf("meter-2 action = %s (%q)", nok.Action, nok.ActionError)
	}

	data, err := json.Marshal(nok)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"batch_id", "device_id", "errors", "action", "duration_ms"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing %s: %s", key, data)
		}
	}

	if got := ResultMessages(rs, rs.All()); len(got) != 2 {
		t.Errorf("ResultMessages() = %d messages, want 2", len(got))
	}
}

func TestFirstCode(t *testing.T) {
	tests := []struct {
		errs transaction.ErrorSet
		want string
	}{
		{transaction.ErrorSet{}, "NONE"},
		{transaction.OKSet(), "OK"},
		{transaction.NewErrorSet(transaction.Error{Code: transaction.CodeNoAccess}, transaction.Error{Code: transaction.CodeTimeout}), "NO_ACCESS"},
	}
	for _, tt := range tests {
		if got := FirstCode(tt.errs); got != tt.want {
			t.Errorf("FirstCode(%s) = %s, want %s", tt.errs, got, tt.want)
		}
	}
}

func TestMQTTPublisher(t *testing.T) {
	pub := &fakePublisher{}
	rs := runBatch(t, NewMQTTPublisher(pub))

	msgs := pub.byTopic()
	summaryTopic := "graylogic/fleet/" + rs.ID() + "/summary"

	summaries := msgs[summaryTopic]
	if len(summaries) != 2 {
		t.Fatalf("summary published %d times, want start + finish", len(summaries))
	}
	var final transaction.Summary
	if err := json.Unmarshal(summaries[1].payload, &final); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if !summaries[1].retained || !final.Complete || final.OK != 1 || final.NOK != 1 {
		t.Errorf("final summary = %+v retained=%v", final, summaries[1].retained)
	}

	for _, id := range []string{"meter-1", "meter-2"} {
		got := msgs["graylogic/fleet/"+rs.ID()+"/result/"+id]
		if len(got) != 1 {
			t.Fatalf("%s published %d times, want 1", id, len(got))
		}
		var msg ResultMessage
		if err := json.Unmarshal(got[0].payload, &msg); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if msg.DeviceID != id || msg.BatchID != rs.ID() || got[0].retained {
			t.Errorf("result message = %+v", msg)
		}
	}
}

func TestMQTTPublisher_FailuresLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("mqtt: not connected")}
	logger := &countingLogger{}
	p := NewMQTTPublisher(pub)
	p.SetLogger(logger)

	rs := runBatch(t, p)
	if !rs.IsComplete() {
		t.Fatal("batch incomplete")
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.n != 4 {
		t.Errorf("logged %d failures, want 4", logger.n)
	}
}

func TestTelemetry(t *testing.T) {
	w := &fakeWriter{}
	rs := runBatch(t, NewTelemetry(w))

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.outcomes) != 2 {
		t.Fatalf("wrote %d outcomes, want 2", len(w.outcomes))
	}
	codes := map[string]influxdb.SessionOutcome{}
	for _, o := range w.outcomes {
		codes[o.DeviceID] = o
		if o.BatchID != rs.ID() || o.Operation != "ping" || o.Finished.IsZero() {
			t.Errorf("outcome = %+v", o)
		}
	}
	if o := codes["meter-1"]; o.Code != "OK" || !o.OK || o.Action != "graceful_close" {
		t.Errorf("meter-1 outcome = %+v", o)
	}
	if o := codes["meter-2"]; o.Code != "TIMEOUT" || o.OK || o.Action != "force_disconnect" {
		t.Errorf("meter-2 outcome = %+v", o)
	}

	if len(w.summaries) != 1 {
		t.Fatalf("wrote %d summaries, want 1", len(w.summaries))
	}
	if s := w.summaries[0]; s.Total != 2 || s.OK != 1 || s.NOK != 1 {
		t.Errorf("summary = %+v", s)
	}
}
