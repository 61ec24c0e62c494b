// Package server assembles the chat services and their HTTP surface.
package server

import (
	"context"
	"net/http"

	"clubing-chat/internal/config"
	"clubing-chat/internal/domain"
	"clubing-chat/internal/handler"
	"clubing-chat/internal/middleware"
	"clubing-chat/internal/security"
	"clubing-chat/internal/service"
	"clubing-chat/internal/websocket"
)

// Stores are the persistence backends the chat services run on.
type Stores struct {
	Rooms    domain.RoomRepository
	Messages domain.MessageRepository
	Clubs    domain.ClubDirectory
}

// Options configures New. Filter and Relay may be nil.
type Options struct {
	Config      *config.Config
	Stores      Stores
	Filter      service.ContentFilter
	Relay       service.Broadcaster
	ReadyChecks []handler.HealthCheck
}

// App is a fully wired chat service. The caller runs Hub.
type App struct {
	Hub        *websocket.Hub
	Registry   *service.RoomRegistry
	Store      *service.MessageStore
	Visibility *service.VisibilityResolver
	Pipeline   *service.IngestionPipeline
	Addresses  *websocket.AddressBook
	Handler    http.Handler
}

// New wires services, handlers and routes. Connections and rate limiter
// housekeeping stop when ctx is cancelled.
func New(ctx context.Context, opts Options) *App {
	cfg := opts.Config
	hub := websocket.NewHub()

	var broadcaster service.Broadcaster = hub
	if opts.Relay != nil {
		broadcaster = service.MultiBroadcaster{hub, opts.Relay}
	}

	registry := service.NewRoomRegistry(opts.Stores.Rooms, opts.Stores.Clubs)
	store := service.NewMessageStore(opts.Stores.Messages, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit)
	visibility := service.NewVisibilityResolver(opts.Stores.Rooms, store)
	pipeline := service.NewIngestionPipeline(opts.Stores.Rooms, store, broadcaster, opts.Filter)

	verifier := security.NewTokenVerifier(cfg.JWTSecret)
	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	addresses := websocket.NewAddressBook()

	rooms := handler.NewRoomHandler(registry, visibility, store)
	sockets := handler.NewWebSocketHandler(ctx, hub, verifier, websocket.ClientOptions{
		Submitter:        pipeline,
		MessagesPerSec:   cfg.WSMessagesPerSecond,
		Burst:            cfg.WSBurst,
		OperationTimeout: cfg.OperationTimeout,
	}, addresses, origins)

	return &App{
		Hub:        hub,
		Registry:   registry,
		Store:      store,
		Visibility: visibility,
		Pipeline:   pipeline,
		Addresses:  addresses,
		Handler: newRouter(ctx, routes{
			cfg:         cfg,
			origins:     origins,
			verifier:    verifier,
			rooms:       rooms,
			sockets:     sockets,
			readyChecks: opts.ReadyChecks,
		}),
	}
}
