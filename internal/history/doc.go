// Package history persists finished batches and per-device outcomes to SQLite
// so they survive restarts and eviction from the live registry.
//
// The schema lives in the embedded migrations (batches, batch_results).
// Recorder is a transaction.Observer that writes each batch as it runs:
// a running row at start, one result row per finished session, and final
// OK/NOK counts when the batch completes.
package history
