package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// newRouter wires every endpoint. The generation routes are served both at
// the root and under /api.
func newRouter(ctx context.Context, cfg Config, models ModelFactory) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("req_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
	}))

	r.Get("/health", handleHealth)
	r.Get("/schema/{name}", handleSchema)

	tmpl := NewTemplateService(models, cfg.TemplateModel)
	chat := NewChatService(models, cfg.ChatModel)
	stream := NewStreamService(models, cfg.ChatModel, cfg.Origins)

	api := func(r chi.Router) {
		r.Post("/template", tmpl.Handler())
		r.Post("/chat", chat.Handler())
		r.Get("/chat/stream", stream.Handler(ctx))
	}
	api(r)
	r.Route("/api", api)

	return r
}
