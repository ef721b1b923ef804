package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pnj.com/jewelry-designer/internal/metrics"
)

const apiVersion = "1.0.0"

func NewRouter(apiHandler *APIHandler, allowedOrigins string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(CORS(allowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "PNJ Jewelry Designer API",
			"version": apiVersion,
			"docs":    "/api/v1",
		})
	})
	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// All API routes will be under /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", healthHandler)
		r.Post("/users/register", apiHandler.RegisterHandler)
		r.Post("/users/login", apiHandler.LoginHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/users/me", apiHandler.GetMeHandler)
			r.Put("/users/me", apiHandler.UpdateMeHandler)
			r.Delete("/users/me", apiHandler.DeleteMeHandler)

			r.Post("/conversations", apiHandler.CreateConversationHandler)
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Delete("/conversations/{conversationID}", apiHandler.DeleteConversationHandler)

			r.Post("/images/upload", apiHandler.UploadImageHandler)
			r.Get("/images", apiHandler.ListImagesHandler)
			r.Get("/images/{imageID}", apiHandler.GetImageHandler)
			r.Delete("/images/{imageID}", apiHandler.DeleteImageHandler)

			r.Post("/chat", apiHandler.ChatHandler)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
