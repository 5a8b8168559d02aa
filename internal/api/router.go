package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-fleet/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Prometheus scrape endpoint (no auth required for basic monitoring)
		if s.metrics != nil {
			r.Handle("/metrics/prometheus", s.metrics.Handler())
		}

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermEventsStream)).Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDeviceRead))
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)
			})

			r.Route("/batches", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBatchRead)).Get("/", s.handleListBatches)
				r.With(s.requirePermission(auth.PermBatchStart)).Post("/", s.handleStartBatch)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermBatchRead)).Get("/", s.handleGetBatch)
					r.With(s.requirePermission(auth.PermBatchRead)).Get("/results", s.handleGetBatchResults)
					r.With(s.requirePermission(auth.PermBatchRead)).Get("/results/{device}", s.handleGetDeviceResult)
					r.With(s.requirePermission(auth.PermBatchCancel)).Delete("/", s.handleCancelBatch)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status. The status is "degraded"
// while the MQTT link to the gateways is down.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	components := map[string]any{
		"websocket_clients": s.hub.ClientCount(),
		"live_batches":      len(s.transactions.Batches()),
		"devices":           s.inventory.Len(),
		"history":           s.history != nil,
	}
	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		components["mqtt"] = connected
		if !connected {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
