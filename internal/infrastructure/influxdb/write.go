package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSessionOutcome = "session_outcome"
	measurementBatchSummary   = "batch_summary"
)

// SessionOutcome is the telemetry record of one finished device session.
type SessionOutcome struct {
	BatchID   string
	DeviceID  string
	Operation string
	Code      string // first error code, "OK" when the session succeeded
	Action    string
	OK        bool
	Duration  time.Duration
	Finished  time.Time
}

// BatchSummary is the telemetry record of one finished batch.
type BatchSummary struct {
	BatchID   string
	Operation string
	Total     int
	OK        int
	NOK       int
	Duration  time.Duration
	Finished  time.Time
}

// WriteSessionOutcome queues one session_outcome point. Non-blocking.
//
// Tags: batch_id, device_id, operation, code, action
// Fields: ok, duration_ms
func (c *Client) WriteSessionOutcome(o SessionOutcome) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sessionOutcomePoint(o))
}

// WriteBatchSummary queues one batch_summary point. Non-blocking.
func (c *Client) WriteBatchSummary(s BatchSummary) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(batchSummaryPoint(s))
}

// WritePoint queues a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func sessionOutcomePoint(o SessionOutcome) *write.Point {
	ts := o.Finished
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		measurementSessionOutcome,
		map[string]string{
			"batch_id":  o.BatchID,
			"device_id": o.DeviceID,
			"operation": o.Operation,
			"code":      o.Code,
			"action":    o.Action,
		},
		map[string]any{
			"ok":          o.OK,
			"duration_ms": o.Duration.Milliseconds(),
		},
		ts,
	)
}

func batchSummaryPoint(s BatchSummary) *write.Point {
	ts := s.Finished
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		measurementBatchSummary,
		map[string]string{
			"batch_id":  s.BatchID,
			"operation": s.Operation,
		},
		map[string]any{
			"total":       s.Total,
			"ok":          s.OK,
			"nok":         s.NOK,
			"duration_ms": s.Duration.Milliseconds(),
		},
		ts,
	)
}
