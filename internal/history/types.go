package history

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// ErrBatchNotFound is returned when no batch with the requested id is stored.
var ErrBatchNotFound = errors.New("history: batch not found")

// Status is the lifecycle state of a stored batch.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// Batch is one stored batch.
type Batch struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Operation  string     `json:"operation"`
	Status     Status     `json:"status"`
	Total      int        `json:"total"`
	OK         int        `json:"ok"`
	NOK        int        `json:"nok"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Result is one stored device outcome.
type Result struct {
	BatchID     string               `json:"batch_id"`
	DeviceID    string               `json:"device_id"`
	OK          bool                 `json:"ok"`
	Errors      transaction.ErrorSet `json:"errors"`
	Action      string               `json:"action"`
	ActionError string               `json:"action_error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	DurationMS  int64                `json:"duration_ms"`
}

// BatchFromResults captures the start state of a live batch.
func BatchFromResults(rs *transaction.Results) Batch {
	return Batch{
		ID:        rs.ID(),
		Name:      rs.Name(),
		Operation: rs.Operation(),
		Status:    StatusRunning,
		Total:     rs.Len(),
		CreatedAt: rs.Created(),
	}
}

// ResultFromTransaction converts a completed live result.
func ResultFromTransaction(batchID string, r *transaction.Result) Result {
	out := Result{
		BatchID:    batchID,
		DeviceID:   r.Client().ID(),
		OK:         r.OK(),
		Errors:     r.Errors(),
		Action:     r.Action().String(),
		StartedAt:  r.Started(),
		FinishedAt: r.Finished(),
		DurationMS: r.Duration().Milliseconds(),
	}
	if err := r.ActionErr(); err != nil {
		out.ActionError = err.Error()
	}
	return out
}
