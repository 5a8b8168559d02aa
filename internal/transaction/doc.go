// Package transaction runs one operation concurrently against a batch of
// device connections and reports a per-connection outcome.
//
// # Architecture
//
//	caller ──► Server.Start ──► one session per Client (errgroup)
//	                               │
//	                               ├─ Connecting  (Client.Connect)
//	                               ├─ Exchanging  (Operation.Exchange)
//	                               ├─ Finalizing  (Classify → Close / ForceDisconnect / nothing)
//	                               └─ Done        (Result published)
//
// A session never returns an error and never panics into the server: every
// failure is converted into an ErrorSet entry on its Result. The batch-level
// Results aggregate is safe to read while sessions are still running, and
// its views are recomputed on every call.
//
// # Usage
//
//	srv := transaction.NewServer(transaction.Options{SessionTimeout: 30 * time.Second})
//	defer srv.Close()
//
//	results, err := srv.Run(ctx, clients, operation.Read{Objects: objs}, "nightly-read")
//	if err != nil {
//	    return err // setup error only (empty batch, nil operation, ...)
//	}
//	for _, r := range results.NOKResults() {
//	    log.Warn("device failed", "device", r.Client().ID(), "errors", r.Errors())
//	}
//
// Fire-and-poll usage:
//
//	batch, err := srv.Start(clients, op, "firmware-check")
//	...
//	if batch.Results().IsComplete() { ... }
//
// # Thread Safety
//
// Server, Batch, Results and Result are safe for concurrent use. The shared
// Operation must be safe to call from every session at once.
package transaction
