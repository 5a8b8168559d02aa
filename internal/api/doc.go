// Package api implements the HTTP REST API and WebSocket server for Gray Logic Fleet.
//
// This package provides:
//   - REST endpoints to start, inspect and cancel batch transactions
//   - Read-only access to the configured device inventory
//   - WebSocket hub relaying batch progress events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, JWT auth)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator tooling and the transaction server.
// POST /batches resolves devices through the link inventory, builds an
// operation and starts a batch; progress flows back through the Hub, which
// is registered as a transaction.Observer and broadcasts to WebSocket clients.
// Finished batches that have been evicted from memory are served from history.
//
// # Security
//
// Protected routes require an HS256 bearer token (see package auth).
// WebSocket connections use single-use tickets to keep tokens out of URLs.
package api
