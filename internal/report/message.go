package report

import (
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// ResultMessage is the published form of one device outcome.
type ResultMessage struct {
	BatchID     string               `json:"batch_id"`
	DeviceID    string               `json:"device_id"`
	Operation   string               `json:"operation"`
	State       string               `json:"state"`
	Complete    bool                 `json:"complete"`
	OK          bool                 `json:"ok"`
	Errors      transaction.ErrorSet `json:"errors"`
	Action      string               `json:"action"`
	ActionError string               `json:"action_error,omitempty"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
	DurationMS  int64                `json:"duration_ms"`
}

// NewResultMessage snapshots r. Safe to call while the session runs.
func NewResultMessage(rs *transaction.Results, r *transaction.Result) ResultMessage {
	msg := ResultMessage{
		BatchID:    rs.ID(),
		DeviceID:   r.Client().ID(),
		Operation:  rs.Operation(),
		State:      r.State().String(),
		Complete:   r.Complete(),
		OK:         r.OK(),
		Errors:     r.Errors(),
		Action:     r.Action().String(),
		DurationMS: r.Duration().Milliseconds(),
	}
	if err := r.ActionErr(); err != nil {
		msg.ActionError = err.Error()
	}
	if t := r.Started(); !t.IsZero() {
		msg.StartedAt = &t
	}
	if t := r.Finished(); !t.IsZero() {
		msg.FinishedAt = &t
	}
	return msg
}

// ResultMessages snapshots a list of results of one batch.
func ResultMessages(rs *transaction.Results, results []*transaction.Result) []ResultMessage {
	out := make([]ResultMessage, 0, len(results))
	for _, r := range results {
		out = append(out, NewResultMessage(rs, r))
	}
	return out
}

// FirstCode returns the code used to tag an outcome: the first entry of the
// error set, or "NONE" for an empty set.
func FirstCode(errs transaction.ErrorSet) string {
	codes := errs.Codes()
	if len(codes) == 0 {
		return "NONE"
	}
	return string(codes[0])
}
