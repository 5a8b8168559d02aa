// Package metrics exposes batch and session counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-fleet/internal/report"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Collector records batch progress. It implements transaction.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	// BatchesStarted tracks batches per operation
	BatchesStarted *prometheus.CounterVec

	// BatchesFinished tracks completed batches per operation
	BatchesFinished *prometheus.CounterVec

	// SessionsTotal tracks finished sessions by terminal code and action
	SessionsTotal *prometheus.CounterVec

	// SessionDuration tracks session run time
	SessionDuration *prometheus.HistogramVec

	// SessionsInFlight tracks sessions not yet finished across all batches
	SessionsInFlight prometheus.Gauge
}

var _ transaction.Observer = (*Collector)(nil)

// New registers the fleet metrics on reg. Pass prometheus.NewRegistry() in
// tests and main to keep the process default registry untouched.
func New(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		gatherer: reg,
		BatchesStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grayfleet_batches_started_total",
				Help: "Total number of batches started",
			},
			[]string{"operation"},
		),
		BatchesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grayfleet_batches_finished_total",
				Help: "Total number of batches finished",
			},
			[]string{"operation"},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grayfleet_sessions_total",
				Help: "Total number of device sessions by terminal code and post-session action",
			},
			[]string{"operation", "code", "action"},
		),
		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grayfleet_session_duration_seconds",
				Help:    "Device session duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation", "outcome"},
		),
		SessionsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "grayfleet_sessions_in_flight",
				Help: "Number of device sessions that have not finished",
			},
		),
	}
}

// BatchStarted implements transaction.Observer.
func (c *Collector) BatchStarted(rs *transaction.Results) {
	c.BatchesStarted.WithLabelValues(rs.Operation()).Inc()
	c.SessionsInFlight.Add(float64(rs.Len()))
}

// SessionFinished implements transaction.Observer.
func (c *Collector) SessionFinished(rs *transaction.Results, r *transaction.Result) {
	outcome := "nok"
	if r.OK() {
		outcome = "ok"
	}
	c.SessionsTotal.WithLabelValues(rs.Operation(), report.FirstCode(r.Errors()), r.Action().String()).Inc()
	c.SessionDuration.WithLabelValues(rs.Operation(), outcome).Observe(r.Duration().Seconds())
	c.SessionsInFlight.Dec()
}

// BatchFinished implements transaction.Observer.
func (c *Collector) BatchFinished(rs *transaction.Results) {
	c.BatchesFinished.WithLabelValues(rs.Operation()).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
