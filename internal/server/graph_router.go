package server

import (
	"net/http"

	"github.com/dirchat/dirchat/internal/api"
	"github.com/dirchat/dirchat/internal/api/handlers"
	"github.com/dirchat/dirchat/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type GraphRouterConfig struct {
	GraphHandler *handlers.GraphHandler
}

// NewGraphRouter builds the HTTP handler for the graph QA server.
func NewGraphRouter(cfg GraphRouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/question", cfg.GraphHandler.Question)

	return r
}
