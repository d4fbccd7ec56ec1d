package server

import (
	"net/http"

	"github.com/dirchat/dirchat/internal/api"
	"github.com/dirchat/dirchat/internal/api/handlers"
	"github.com/dirchat/dirchat/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	SessionHandler *handlers.SessionHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Uploads carry whole documents, so the body cap is generous.
	const maxBodyBytes int64 = 50 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", cfg.SessionHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(middleware.SessionID)

			r.Get("/", cfg.SessionHandler.Get)
			r.Delete("/", cfg.SessionHandler.Delete)
			r.Post("/documents", cfg.SessionHandler.UploadDocuments)
			r.Post("/process", cfg.SessionHandler.Process)
			r.Post("/ask", cfg.SessionHandler.Ask)
			r.Post("/reset", cfg.SessionHandler.Reset)
			r.Get("/transcript", cfg.SessionHandler.Transcript)
		})
	})

	return r
}
