package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/castlogic-core/internal/auth"
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
		// Health, metrics and token exchange need no credentials.
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/auth/token", s.handleIssueToken)

		// WebSocket authenticates in the handler (token query parameter).
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/receivers", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermReceiverRead)).Get("/", s.handleListReceivers)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermReceiverRead))
					r.Get("/", s.handleGetReceiver)
					r.Get("/status", s.handleGetReceiverStatus)
					r.Get("/queue", s.handleGetQueue)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermQueueManage))
						r.Post("/queue/move-up", s.handleQueueMoveUp)
						r.Post("/queue/move-down", s.handleQueueMoveDown)
						r.Post("/queue/drain", s.handleQueueDrain)
						r.Post("/queue/shuffle", s.handleQueueShuffle)
						r.Post("/queue/order", s.handleQueueOrder)
					})
				})
			})

			r.Route("/phrases", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermReceiverRead)).Get("/sources", s.handleListSources)
				r.With(s.requirePermission(auth.PermReceiverRead)).Post("/resolve", s.handleResolvePhrase)
				r.With(s.requirePermission(auth.PermPlaybackControl)).Post("/play", s.handlePlayPhrase)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
