package transaction

import (
	"time"

	"github.com/google/uuid"
)

// Results aggregates the Result of every client in a batch.
//
// The slice of results is fixed at construction; only the individual Result
// records change. Every view is computed on each call, so reading while the
// batch is running returns the current partial state.
type Results struct {
	id      string
	name    string
	op      string
	created time.Time
	results []*Result
	index   map[Client]*Result
}

func newResults(clients []Client, opName, name string) *Results {
	rs := &Results{
		id:      uuid.NewString(),
		name:    name,
		op:      opName,
		created: time.Now(),
		results: make([]*Result, 0, len(clients)),
		index:   make(map[Client]*Result, len(clients)),
	}
	for _, c := range clients {
		r := newResult(c)
		rs.results = append(rs.results, r)
		rs.index[c] = r
	}
	return rs
}

// ID returns the batch identifier.
func (rs *Results) ID() string { return rs.id }

// Name returns the optional batch name.
func (rs *Results) Name() string { return rs.name }

// Operation returns the name of the operation the batch runs.
func (rs *Results) Operation() string { return rs.op }

// Created returns when the batch was built.
func (rs *Results) Created() time.Time { return rs.created }

// Len returns the number of results (one per client).
func (rs *Results) Len() int { return len(rs.results) }

// All returns every result in input order.
func (rs *Results) All() []*Result {
	cp := make([]*Result, len(rs.results))
	copy(cp, rs.results)
	return cp
}

// Clients returns the distinct clients of the batch in input order.
func (rs *Results) Clients() []Client {
	clients := make([]Client, len(rs.results))
	for i, r := range rs.results {
		clients[i] = r.client
	}
	return clients
}

// Lookup returns the result for a client, or nil if it is not in the batch.
func (rs *Results) Lookup(client Client) *Result {
	return rs.index[client]
}

// ByID returns the result whose client has the given ID, or nil.
func (rs *Results) ByID(clientID string) *Result {
	for _, r := range rs.results {
		if r.client.ID() == clientID {
			return r
		}
	}
	return nil
}

// OKResults returns the completed results whose error set is entirely OK.
func (rs *Results) OKResults() []*Result {
	var out []*Result
	for _, r := range rs.results {
		if r.Complete() && r.Errors().OK() {
			out = append(out, r)
		}
	}
	return out
}

// NOKResults returns the completed results that are not OK.
func (rs *Results) NOKResults() []*Result {
	var out []*Result
	for _, r := range rs.results {
		if r.Complete() && !r.Errors().OK() {
			out = append(out, r)
		}
	}
	return out
}

// Pending returns the results whose session has not finished yet.
func (rs *Results) Pending() []*Result {
	var out []*Result
	for _, r := range rs.results {
		if !r.Complete() {
			out = append(out, r)
		}
	}
	return out
}

// IsComplete reports whether every session has finished.
func (rs *Results) IsComplete() bool {
	for _, r := range rs.results {
		if !r.Complete() {
			return false
		}
	}
	return true
}

// Summary is a point-in-time count of a batch's results.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
	Total     int       `json:"total"`
	OK        int       `json:"ok"`
	NOK       int       `json:"nok"`
	Pending   int       `json:"pending"`
	Complete  bool      `json:"complete"`
}

// Summary counts the results in a single pass so the numbers are consistent
// with each other.
func (rs *Results) Summary() Summary {
	s := Summary{
		ID:        rs.id,
		Name:      rs.name,
		Operation: rs.op,
		Created:   rs.created,
		Total:     len(rs.results),
	}
	for _, r := range rs.results {
		switch {
		case !r.Complete():
			s.Pending++
		case r.Errors().OK():
			s.OK++
		default:
			s.NOK++
		}
	}
	s.Complete = s.Pending == 0
	return s
}
