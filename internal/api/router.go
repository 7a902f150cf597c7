package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/connection", s.handleConnection)
			r.Get("/statistics", s.handleStatistics)

			r.Route("/status", func(r chi.Router) {
				r.Get("/", s.handleListStatus)
				r.Get("/{address}", s.handleGetStatus)
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/groups", s.handleListGroupAddresses)
				r.Get("/devices", s.handleListDevices)
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
