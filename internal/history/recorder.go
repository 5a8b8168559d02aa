package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// writeTimeout bounds each database write made by the Recorder.
const writeTimeout = 5 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder persists batches as they run. It implements transaction.Observer.
// Write failures are logged; they never affect the batch.
type Recorder struct {
	repo Repository

	logger   Logger
	loggerMu sync.RWMutex
}

var _ transaction.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (rec *Recorder) SetLogger(logger Logger) {
	rec.loggerMu.Lock()
	defer rec.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	rec.logger = logger
}

func (rec *Recorder) getLogger() Logger {
	rec.loggerMu.RLock()
	defer rec.loggerMu.RUnlock()
	return rec.logger
}

// BatchStarted stores the batch as running.
func (rec *Recorder) BatchStarted(rs *transaction.Results) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	b := BatchFromResults(rs)
	if err := rec.repo.SaveBatch(ctx, &b); err != nil {
		rec.getLogger().Error("recording batch start failed", "batch_id", rs.ID(), "error", err)
	}
}

// SessionFinished stores one device outcome.
func (rec *Recorder) SessionFinished(rs *transaction.Results, r *transaction.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	res := ResultFromTransaction(rs.ID(), r)
	if err := rec.repo.SaveResult(ctx, &res); err != nil {
		rec.getLogger().Warn("recording session outcome failed",
			"batch_id", rs.ID(),
			"device_id", res.DeviceID,
			"error", err,
		)
	}
}

// BatchFinished stores the final counts.
func (rec *Recorder) BatchFinished(rs *transaction.Results) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s := rs.Summary()
	if err := rec.repo.FinishBatch(ctx, rs.ID(), s.OK, s.NOK, time.Now()); err != nil {
		rec.getLogger().Error("recording batch finish failed", "batch_id", rs.ID(), "error", err)
	}
}
