package transaction

// Observer is notified as batches progress. Implementations must be safe for
// concurrent use: SessionFinished is called from every session goroutine.
//
// Observers are side channels (history, metrics, MQTT, WebSocket); they cannot
// influence a batch and their panics are recovered.
type Observer interface {
	// BatchStarted is called once, before any session runs.
	BatchStarted(rs *Results)

	// SessionFinished is called once per client, after its Result is complete.
	SessionFinished(rs *Results, r *Result)

	// BatchFinished is called once, after every Result is complete.
	BatchFinished(rs *Results)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnBatchStarted    func(rs *Results)
	OnSessionFinished func(rs *Results, r *Result)
	OnBatchFinished   func(rs *Results)
}

// BatchStarted implements Observer.
func (f ObserverFuncs) BatchStarted(rs *Results) {
	if f.OnBatchStarted != nil {
		f.OnBatchStarted(rs)
	}
}

// SessionFinished implements Observer.
func (f ObserverFuncs) SessionFinished(rs *Results, r *Result) {
	if f.OnSessionFinished != nil {
		f.OnSessionFinished(rs, r)
	}
}

// BatchFinished implements Observer.
func (f ObserverFuncs) BatchFinished(rs *Results) {
	if f.OnBatchFinished != nil {
		f.OnBatchFinished(rs)
	}
}
