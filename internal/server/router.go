package server

import (
	"context"
	"net/http"

	"clubing-chat/internal/config"
	"clubing-chat/internal/handler"
	"clubing-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routes struct {
	cfg         *config.Config
	origins     []string
	verifier    middleware.TokenVerifier
	rooms       *handler.RoomHandler
	sockets     *handler.WebSocketHandler
	readyChecks []handler.HealthCheck
}

func newRouter(ctx context.Context, rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.origins))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(rt.readyChecks...))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	r.Route("/api/v1", func(r chi.Router) {
		apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)

		r.Use(apiLimiter.Middleware())
		r.Use(middleware.Auth(rt.verifier))
		r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(rt.cfg.Environment, rt.cfg.OpenAPISpecPath)))

		r.Post("/chatrooms/room", rt.rooms.Join)
		r.Get("/chatrooms/room/{clubId}", rt.rooms.Get)
		r.Get("/chatrooms/{clubId}/messages", rt.rooms.Messages)
	})

	// Auth handled internally to support query param tokens
	wsLimiter := middleware.NewRateLimiter(ctx, 2, 10)
	r.With(wsLimiter.Middleware()).Get("/ws/chat", rt.sockets.HandleConnection)

	return r
}
