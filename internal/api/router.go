package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchwatch/patchwatch/internal/api/alerts"
	"github.com/patchwatch/patchwatch/internal/api/auth"
	"github.com/patchwatch/patchwatch/internal/api/channels"
	cleanuph "github.com/patchwatch/patchwatch/internal/api/cleanup"
	"github.com/patchwatch/patchwatch/internal/api/configs"
	"github.com/patchwatch/patchwatch/internal/api/events"
	"github.com/patchwatch/patchwatch/internal/api/history"
	"github.com/patchwatch/patchwatch/internal/api/middleware"
	"github.com/patchwatch/patchwatch/internal/api/rules"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.TokenTTL)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)

	// API v1 routes (all protected)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtService))

		eventsHandler := events.NewHandler(s.deps.Manager, s.deps.Matcher, s.deps.Dispatcher)
		r.Post("/events", eventsHandler.Ingest)

		r.Route("/alerts", func(r chi.Router) {
			alertsHandler := alerts.NewHandler(s.deps.Manager)

			r.Get("/", alertsHandler.List)
			r.Get("/stats", alertsHandler.Stats)
			r.Post("/bulk-delete", alertsHandler.BulkDelete)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", alertsHandler.GetByID)
				r.Get("/history", alertsHandler.History)
				r.Post("/actions", alertsHandler.Action)
				r.Post("/assign", alertsHandler.Assign)
				r.Delete("/assign", alertsHandler.Unassign)
				r.Delete("/", alertsHandler.Delete)
			})
		})

		r.Route("/alert-configs", func(r chi.Router) {
			configsHandler := configs.NewHandler(s.deps.Registry)

			r.Get("/", configsHandler.List)
			r.Put("/", configsHandler.BulkUpdate)
			r.Get("/{type}", configsHandler.Get)
			r.Put("/{type}", configsHandler.Update)
		})

		r.Route("/notification-rules", func(r chi.Router) {
			rulesHandler := rules.NewHandler(s.deps.Storage.Rules(), s.deps.Storage.Channels())

			r.Get("/", rulesHandler.List)
			r.Post("/", rulesHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rulesHandler.GetByID)
				r.Put("/", rulesHandler.Update)
				r.Delete("/", rulesHandler.Delete)
				r.Post("/toggle", rulesHandler.Toggle)
			})
		})

		r.Route("/notification-channels", func(r chi.Router) {
			channelsHandler := channels.NewHandler(s.deps.Storage.Channels())

			r.Get("/", channelsHandler.List)
			r.Post("/", channelsHandler.Create)
			r.Get("/{id}", channelsHandler.GetByID)
			r.Delete("/{id}", channelsHandler.Delete)
		})

		historyHandler := history.NewHandler(s.deps.Storage.NotificationHistory())
		r.Get("/notification-history", historyHandler.List)

		r.Route("/cleanup", func(r chi.Router) {
			cleanupHandler := cleanuph.NewHandler(s.deps.Scheduler)

			r.Get("/preview", cleanupHandler.Preview)
			r.Post("/run", cleanupHandler.Run)
		})
	})

	// Health check (public)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		OK(w, map[string]string{"status": "ok"})
	})

	return r
}
