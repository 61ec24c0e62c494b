package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubing-chat/internal/config"
	"clubing-chat/internal/handler"
	"clubing-chat/internal/messaging"
	"clubing-chat/internal/moderation"
	"clubing-chat/internal/observability"
	"clubing-chat/internal/repository/badgerstore"
	"clubing-chat/internal/repository/postgres"
	"clubing-chat/internal/server"
	"clubing-chat/internal/service"
)

const (
	serviceName    = "clubing-chat"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("starting chat server",
		slog.String("environment", cfg.Environment),
		slog.String("store_driver", cfg.StoreDriver))
	if cfg.IsDevelopment() {
		observability.Warn("running with development settings; OpenAPI request validation is on")
	}

	shutdownTracing, err := observability.InitTracing(cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		slog.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Club membership always lives in postgres, whichever driver holds
	// rooms and messages.
	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	stores := server.Stores{Clubs: postgres.NewClubDirectory(db)}
	checks := []handler.HealthCheck{handler.DatabaseCheck(db)}

	switch cfg.StoreDriver {
	case config.StoreDriverBadger:
		bdb, err := config.NewBadgerConnection(cfg.BadgerPath)
		if err != nil {
			slog.Error("failed to open badger", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer bdb.Close()

		store, err := badgerstore.New(bdb, slog.Default())
		if err != nil {
			slog.Error("failed to initialize badger store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
		stores.Rooms, stores.Messages = store, store
		checks = append(checks, handler.BadgerCheck(bdb))
		slog.Info("using badger store", slog.String("path", cfg.BadgerPath))

	default:
		migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
		err := postgres.Migrate(migrateCtx, db)
		migrateCancel()
		if err != nil {
			slog.Error("failed to migrate schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		stores.Rooms = postgres.NewRoomRepository(db)
		stores.Messages = postgres.NewMessageRepository(db)
	}

	var filter service.ContentFilter
	if f, err := moderation.NewFilter(cfg.CensoredWords, cfg.CensorRune()); err != nil {
		slog.Error("failed to build content filter", slog.String("error", err.Error()))
		os.Exit(1)
	} else if f != nil {
		filter = f
		slog.Info("content filter enabled", slog.Int("words", len(cfg.CensoredWords)))
	}

	var relay *messaging.Relay
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, 10, 2*time.Second)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		relay = messaging.NewRelay(rmq)
		checks = append(checks, handler.RabbitMQCheck(rmq))
	}

	opts := server.Options{
		Config:      cfg,
		Stores:      stores,
		Filter:      filter,
		ReadyChecks: checks,
	}
	if relay != nil {
		opts.Relay = relay
	}
	app := server.New(ctx, opts)

	go func() {
		if err := app.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	if relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("relay error", slog.String("error", err.Error()))
			}
		}()
		consumer := messaging.NewConsumer(rmq, relay.Origin(), app.Hub)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("failed to start relay consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("cross-instance relay started", slog.String("origin", relay.Origin()))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}
