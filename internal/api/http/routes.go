package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up fetch routes, health check, and Prometheus metrics endpoint.
func NewRouter(fetchService FetchServiceI, images ImageStore, opts Options, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	fetchHandler := NewFetchHandler(fetchService, images, opts, logger)

	r.Route("/fetches", func(r chi.Router) {
		r.Post("/", fetchHandler.CreateFetch)
		r.Get("/suggest", fetchHandler.Suggest)
		r.Get("/{taskID}", fetchHandler.GetFetch)
		r.Get("/{taskID}/image", fetchHandler.GetImage)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
