package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-fleet/internal/history"
	"github.com/nerrad567/gray-logic-fleet/internal/link"
	"github.com/nerrad567/gray-logic-fleet/internal/operation"
	"github.com/nerrad567/gray-logic-fleet/internal/report"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Batch sources reported by the API.
const (
	sourceLive    = "live"
	sourceHistory = "history"
)

// Result filters accepted by GET /batches/{id}/results.
const (
	filterAll     = ""
	filterOK      = "ok"
	filterNOK     = "nok"
	filterPending = "pending"
)

// defaultBatchListLimit bounds how many stored batches are listed.
const defaultBatchListLimit = 50

// startBatchRequest is the body of POST /batches.
type startBatchRequest struct {
	Name      string         `json:"name"`
	Devices   []string       `json:"devices"`
	Operation operation.Spec `json:"operation"`
}

// batchView is the JSON form of a batch, live or stored.
type batchView struct {
	history.Batch
	Pending int    `json:"pending"`
	Source  string `json:"source"`
}

// resultView is the JSON form of one device outcome. Values is set for
// read operations of live batches.
type resultView struct {
	report.ResultMessage
	Values map[string]any `json:"values,omitempty"`
}

// liveBatchView summarises a batch held by the transaction server.
func liveBatchView(rs *transaction.Results) batchView {
	sum := rs.Summary()
	v := batchView{
		Batch: history.Batch{
			ID:        sum.ID,
			Name:      sum.Name,
			Operation: sum.Operation,
			Status:    history.StatusRunning,
			Total:     sum.Total,
			OK:        sum.OK,
			NOK:       sum.NOK,
			CreatedAt: sum.Created,
		},
		Pending: sum.Pending,
		Source:  sourceLive,
	}
	if sum.Complete {
		v.Status = history.StatusFinished
		var last time.Time
		for _, r := range rs.All() {
			if f := r.Finished(); f.After(last) {
				last = f
			}
		}
		v.FinishedAt = &last
	}
	return v
}

// storedBatchView wraps a batch loaded from history. Unfinished stored
// batches were interrupted by a restart; their unrecorded devices count as pending.
func storedBatchView(b history.Batch) batchView {
	v := batchView{Batch: b, Source: sourceHistory}
	if b.Status == history.StatusRunning {
		v.Pending = b.Total - b.OK - b.NOK
	}
	return v
}

// storedResultView converts a recorded outcome.
func storedResultView(op string, r history.Result) resultView {
	started, finished := r.StartedAt, r.FinishedAt
	return resultView{ResultMessage: report.ResultMessage{
		BatchID:     r.BatchID,
		DeviceID:    r.DeviceID,
		Operation:   op,
		State:       transaction.StateDone.String(),
		Complete:    true,
		OK:          r.OK,
		Errors:      r.Errors,
		Action:      r.Action,
		ActionError: r.ActionError,
		StartedAt:   &started,
		FinishedAt:  &finished,
		DurationMS:  r.DurationMS,
	}}
}

// handleStartBatch validates the request, resolves the devices and starts a
// batch. It answers 202 with the initial summary; progress is observed via
// GET /batches/{id} or the WebSocket.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	op, err := operation.Parse(req.Operation)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	clients, err := s.inventory.Clients(req.Devices)
	if err != nil {
		switch {
		case errors.Is(err, link.ErrUnknownDevice), errors.Is(err, transaction.ErrDuplicateClient):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("resolving batch devices", "error", err)
			writeInternalError(w, "failed to resolve devices")
		}
		return
	}

	b, err := s.transactions.Start(clients, op, strings.TrimSpace(req.Name))
	if err != nil {
		if errors.Is(err, transaction.ErrServerClosed) {
			writeUnavailable(w, "transaction server is shutting down")
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	rs := b.Results()
	s.trackOperation(rs.ID(), op)

	if claims := claimsFromContext(r.Context()); claims != nil {
		s.logger.Info("batch requested",
			"batch_id", rs.ID(),
			"subject", claims.Subject,
			"operation", rs.Operation(),
			"devices", rs.Len(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}

	w.Header().Set("Location", "/api/v1/batches/"+rs.ID())
	writeJSON(w, http.StatusAccepted, liveBatchView(rs))
}

// handleListBatches lists live batches (newest first) followed by stored
// batches that are no longer held in memory.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultBatchListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	live := s.transactions.Batches()
	out := make([]batchView, 0, len(live))
	seen := make(map[string]struct{}, len(live))
	for _, b := range live {
		rs := b.Results()
		out = append(out, liveBatchView(rs))
		seen[rs.ID()] = struct{}{}
	}

	if s.history != nil {
		stored, err := s.history.ListBatches(r.Context(), limit)
		if err != nil {
			s.logger.Error("listing stored batches", "error", err)
			writeInternalError(w, "failed to list batches")
			return
		}
		for _, b := range stored {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			out = append(out, storedBatchView(b))
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batches": out,
		"count":   len(out),
	})
}

// handleGetBatch returns one batch, live if retained, otherwise from history.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if b, ok := s.transactions.Lookup(id); ok {
		writeJSON(w, http.StatusOK, liveBatchView(b.Results()))
		return
	}

	stored, ok := s.storedBatch(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, storedBatchView(*stored))
}

// handleGetBatchResults returns the device outcomes of a batch, optionally
// filtered by ?filter=ok|nok|pending.
func (s *Server) handleGetBatchResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filter := strings.ToLower(r.URL.Query().Get("filter"))
	switch filter {
	case filterAll, filterOK, filterNOK, filterPending:
	default:
		writeBadRequest(w, "filter must be one of ok, nok, pending")
		return
	}

	var out []resultView
	if b, ok := s.transactions.Lookup(id); ok {
		out = s.liveResults(b.Results(), filter)
	} else {
		stored, ok := s.storedBatch(w, r, id)
		if !ok {
			return
		}
		results, err := s.history.ListResults(r.Context(), id)
		if err != nil {
			s.logger.Error("listing stored results", "batch_id", id, "error", err)
			writeInternalError(w, "failed to list results")
			return
		}
		out = make([]resultView, 0, len(results))
		for _, res := range results {
			if (filter == filterOK && !res.OK) || (filter == filterNOK && res.OK) || filter == filterPending {
				continue
			}
			out = append(out, storedResultView(stored.Operation, res))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": id,
		"filter":   filter,
		"results":  out,
		"count":    len(out),
	})
}

// handleGetDeviceResult returns the outcome of one device in a batch. A
// device of a live batch that has not finished yet is returned with
// complete=false.
func (s *Server) handleGetDeviceResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deviceID := chi.URLParam(r, "device")

	if b, ok := s.transactions.Lookup(id); ok {
		rs := b.Results()
		res := rs.ByID(deviceID)
		if res == nil {
			writeNotFound(w, "device not in batch")
			return
		}
		writeJSON(w, http.StatusOK, s.liveResultView(rs, res))
		return
	}

	stored, ok := s.storedBatch(w, r, id)
	if !ok {
		return
	}
	results, err := s.history.ListResults(r.Context(), id)
	if err != nil {
		s.logger.Error("listing stored results", "batch_id", id, "error", err)
		writeInternalError(w, "failed to list results")
		return
	}
	for _, res := range results {
		if res.DeviceID == deviceID {
			writeJSON(w, http.StatusOK, storedResultView(stored.Operation, res))
			return
		}
	}
	writeNotFound(w, "no recorded result for device")
}

// liveResultView snapshots one result, attaching read values if any.
func (s *Server) liveResultView(rs *transaction.Results, res *transaction.Result) resultView {
	return s.withValues(rs.ID(), report.NewResultMessage(rs, res))
}

// withValues attaches the values a read operation collected for the device.
func (s *Server) withValues(batchID string, msg report.ResultMessage) resultView {
	v := resultView{ResultMessage: msg}
	if read, ok := s.operationFor(batchID).(*operation.Read); ok {
		if values, found := read.Values(msg.DeviceID); found {
			v.Values = values
		}
	}
	return v
}

// liveResults snapshots the filtered view of a retained batch.
func (s *Server) liveResults(rs *transaction.Results, filter string) []resultView {
	var selected []*transaction.Result
	switch filter {
	case filterOK:
		selected = rs.OKResults()
	case filterNOK:
		selected = rs.NOKResults()
	case filterPending:
		selected = rs.Pending()
	default:
		selected = rs.All()
	}

	out := make([]resultView, 0, len(selected))
	for _, msg := range report.ResultMessages(rs, selected) {
		out = append(out, s.withValues(rs.ID(), msg))
	}
	return out
}

// handleCancelBatch cancels a running batch. Pending sessions finish with
// ABORT; the batch stays queryable.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, ok := s.transactions.Lookup(id)
	if !ok {
		writeNotFound(w, "batch not running")
		return
	}

	select {
	case <-b.Done():
		writeConflict(w, "batch already finished")
		return
	default:
	}

	b.Cancel()
	if claims := claimsFromContext(r.Context()); claims != nil {
		s.logger.Info("batch cancelled", "batch_id", id, "subject", claims.Subject)
	}
	writeJSON(w, http.StatusAccepted, liveBatchView(b.Results()))
}

// storedBatch loads a batch from history, writing 404/500 on failure.
func (s *Server) storedBatch(w http.ResponseWriter, r *http.Request, id string) (*history.Batch, bool) {
	if s.history == nil {
		writeNotFound(w, "batch not found")
		return nil, false
	}
	b, err := s.history.GetBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrBatchNotFound) {
			writeNotFound(w, "batch not found")
			return nil, false
		}
		s.logger.Error("loading stored batch", "batch_id", id, "error", err)
		writeInternalError(w, "failed to load batch")
		return nil, false
	}
	return b, true
}
