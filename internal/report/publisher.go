package report

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// JSONPublisher is the MQTT surface the publisher needs.
// Satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// MQTTPublisher publishes batch progress to the fleet topics.
// It implements transaction.Observer.
type MQTTPublisher struct {
	pub    JSONPublisher
	topics mqtt.Topics

	logger   Logger
	loggerMu sync.RWMutex
}

var _ transaction.Observer = (*MQTTPublisher)(nil)

// NewMQTTPublisher creates a publisher on pub.
func NewMQTTPublisher(pub JSONPublisher) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, logger: noopLogger{}}
}

// SetLogger sets the logger for publish failures.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	defer p.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

func (p *MQTTPublisher) publish(topic string, v any, retained bool) {
	if err := p.pub.PublishJSON(topic, v, retained); err != nil {
		p.loggerMu.RLock()
		logger := p.logger
		p.loggerMu.RUnlock()
		logger.Warn("publishing batch progress failed", "topic", topic, "error", err)
	}
}

// BatchStarted publishes the initial retained summary.
func (p *MQTTPublisher) BatchStarted(rs *transaction.Results) {
	p.publish(p.topics.FleetSummary(rs.ID()), rs.Summary(), true)
}

// SessionFinished publishes one device outcome.
func (p *MQTTPublisher) SessionFinished(rs *transaction.Results, r *transaction.Result) {
	p.publish(p.topics.FleetResult(rs.ID(), r.Client().ID()), NewResultMessage(rs, r), false)
}

// BatchFinished publishes the final retained summary.
func (p *MQTTPublisher) BatchFinished(rs *transaction.Results) {
	p.publish(p.topics.FleetSummary(rs.ID()), rs.Summary(), true)
}

// PointWriter is the InfluxDB surface telemetry needs.
// Satisfied by *influxdb.Client.
type PointWriter interface {
	WriteSessionOutcome(o influxdb.SessionOutcome)
	WriteBatchSummary(s influxdb.BatchSummary)
}

// Telemetry writes outcome points to InfluxDB. It implements transaction.Observer.
type Telemetry struct {
	w PointWriter
}

var _ transaction.Observer = (*Telemetry)(nil)

// NewTelemetry creates a telemetry observer writing to w.
func NewTelemetry(w PointWriter) *Telemetry {
	return &Telemetry{w: w}
}

// BatchStarted implements transaction.Observer.
func (*Telemetry) BatchStarted(*transaction.Results) {}

// SessionFinished writes a session_outcome point.
func (t *Telemetry) SessionFinished(rs *transaction.Results, r *transaction.Result) {
	t.w.WriteSessionOutcome(influxdb.SessionOutcome{
		BatchID:   rs.ID(),
		DeviceID:  r.Client().ID(),
		Operation: rs.Operation(),
		Code:      FirstCode(r.Errors()),
		Action:    r.Action().String(),
		OK:        r.OK(),
		Duration:  r.Duration(),
		Finished:  r.Finished(),
	})
}

// BatchFinished writes a batch_summary point.
func (t *Telemetry) BatchFinished(rs *transaction.Results) {
	s := rs.Summary()
	now := time.Now()
	t.w.WriteBatchSummary(influxdb.BatchSummary{
		BatchID:   s.ID,
		Operation: s.Operation,
		Total:     s.Total,
		OK:        s.OK,
		NOK:       s.NOK,
		Duration:  now.Sub(s.Created),
		Finished:  now,
	})
}
