package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowviz/flowviz/internal/middleware"
)

// NewRouter creates and configures the API router
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	if deps.CORS.Enabled {
		r.Use(middleware.CORS(
			deps.CORS.AllowedOrigins,
			deps.CORS.AllowedMethods,
			deps.CORS.AllowedHeaders,
			deps.CORS.MaxAgeSeconds,
		))
	}

	healthHandler := NewHealthHandler(deps.Pipeline)
	telemetryHandler := NewTelemetryHandler(deps.Pipeline, deps.History)
	tuningHandler := NewTuningHandler(deps.Pipeline.Tuning(), logger)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/telemetry", telemetryHandler.Snapshot)
		r.Get("/telemetry/history", telemetryHandler.History)
		r.Get("/tuning", tuningHandler.Get)

		if deps.Auth != nil {
			r.Post("/login", NewAuthHandler(deps.Auth).Login)
		}

		// Tuning writes, JWT protected when auth is enabled
		r.Group(func(r chi.Router) {
			if deps.Auth != nil {
				r.Use(middleware.JWTAuth(deps.Auth))
			}

			r.Put("/tuning", tuningHandler.Update)
			r.Post("/tuning/batch-size/increase", tuningHandler.IncreaseBatchSize)
			r.Post("/tuning/batch-size/decrease", tuningHandler.DecreaseBatchSize)
			r.Post("/tuning/delay/increase", tuningHandler.IncreaseDelay)
			r.Post("/tuning/delay/decrease", tuningHandler.DecreaseDelay)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
