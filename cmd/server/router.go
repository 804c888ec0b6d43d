package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/phrazzld/classifier-api/internal/api"
	apiMiddleware "github.com/phrazzld/classifier-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", apiMiddleware.APIKeyHeader},
		MaxAge:         300,
	}))
	r.Use(apiMiddleware.TraceMiddleware)

	classifyHandler := api.NewClassifyHandler(app.classificationService)
	syncHandler := api.NewSyncHandler(app.syncService)
	healthHandler := api.NewHealthHandler(app.cache)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.keys)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/classify", classifyHandler.ClassifySync)
			r.Post("/classify/async", classifyHandler.SubmitAsync)
			r.Get("/classify/status/{job_id}", classifyHandler.Status)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAdmin)
				r.Post("/admin/sync-tags", syncHandler.SyncTags)
			})
		})
	})

	r.Get("/health", healthHandler.Health)

	return r
}
