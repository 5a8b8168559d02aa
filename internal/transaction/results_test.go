package transaction

import (
	"encoding/json"
	"testing"
)

func TestResults_Partition(t *testing.T) {
	a, b, c := newMockClient("a"), newMockClient("b"), newMockClient("c")
	rs := newResults(asClients(a, b, c), "read", "nightly")

	rs.Lookup(a).finish(OKSet(), ActionGracefulClose, nil)
	rs.Lookup(b).finish(NewErrorSet(Error{Code: CodeTimeout}), ActionForceDisconnect, nil)

	ok, nok, pending := rs.OKResults(), rs.NOKResults(), rs.Pending()
	if len(ok) != 1 || len(nok) != 1 || len(pending) != 1 {
		t.Fatalf("ok/nok/pending = %d/%d/%d, want 1/1/1", len(ok), len(nok), len(pending))
	}
	if rs.IsComplete() {
		t.Error("IsComplete() = true with a pending result")
	}

	rs.Lookup(c).finish(ErrorSet{}, ActionForceDisconnect, nil)

	seen := make(map[*Result]int)
	for _, r := range rs.OKResults() {
		seen[r]++
	}
	for _, r := range rs.NOKResults() {
		seen[r]++
	}
	if len(seen) != rs.Len() {
		t.Errorf("ok ∪ nok covers %d results, want %d", len(seen), rs.Len())
	}
	for r, n := range seen {
		if n != 1 {
			t.Errorf("%s appears in %d views, want 1", r.Client().ID(), n)
		}
	}
	if !rs.IsComplete() {
		t.Error("IsComplete() = false with every result finished")
	}
}

func TestResults_ViewsRecomputed(t *testing.T) {
	a := newMockClient("a")
	rs := newResults(asClients(a), "read", "")

	if n := len(rs.OKResults()); n != 0 {
		t.Fatalf("OKResults() = %d before finish, want 0", n)
	}
	rs.Lookup(a).finish(OKSet(), ActionGracefulClose, nil)
	if n := len(rs.OKResults()); n != 1 {
		t.Errorf("OKResults() = %d after finish, want 1", n)
	}
}

func TestResults_ClientsAndLookup(t *testing.T) {
	a, b := newMockClient("a"), newMockClient("b")
	rs := newResults(asClients(a, b), "read", "")

	clients := rs.Clients()
	if len(clients) != 2 || clients[0] != Client(a) || clients[1] != Client(b) {
		t.Errorf("Clients() = %v, want input order", clients)
	}
	if rs.Lookup(newMockClient("x")) != nil {
		t.Error("Lookup() of a foreign client should be nil")
	}
	if rs.ByID("b") != rs.Lookup(b) {
		t.Error("ByID(b) does not match Lookup(b)")
	}
	if rs.ByID("x") != nil {
		t.Error("ByID() of an unknown id should be nil")
	}
	if rs.ID() == "" {
		t.Error("ID() is empty")
	}
}

func TestResult_FinishOnce(t *testing.T) {
	r := newResult(newMockClient("a"))
	if r.Complete() || r.State() != StateInit {
		t.Fatal("new result should be incomplete and in init")
	}

	if !r.finish(OKSet(), ActionGracefulClose, nil) {
		t.Fatal("first finish() = false")
	}
	if r.finish(NewErrorSet(Error{Code: CodeAbort}), ActionForceDisconnect, nil) {
		t.Error("second finish() = true")
	}
	if !r.OK() || r.Action() != ActionGracefulClose {
		t.Error("second finish() overwrote the outcome")
	}
	if r.Duration() < 0 {
		t.Errorf("Duration() = %v", r.Duration())
	}
}

func TestSummary_JSON(t *testing.T) {
	a, b := newMockClient("a"), newMockClient("b")
	rs := newResults(asClients(a, b), "ping", "probe")
	rs.Lookup(a).finish(OKSet(), ActionGracefulClose, nil)

	data, err := json.Marshal(rs.Summary())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["ok"] != float64(1) || got["pending"] != float64(1) || got["complete"] != false {
		t.Errorf("summary = %s", data)
	}
}
