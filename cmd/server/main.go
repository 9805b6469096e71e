// Command server is the entry point for the clubhub HTTP API.
package main

//go:generate swag init -d ../.. -g cmd/server/main.go -o ../../docs

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubhub/internal/bootstrap"
	"clubhub/internal/config"
	"clubhub/internal/middleware"
	"clubhub/internal/observability"
	"clubhub/internal/server"
)

// @title clubhub API
// @version 1.0
// @description Membership, recruitment, board and gallery API for a university club

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "clubhub-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.OTelExporter,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SamplerRatio:   cfg.OTelSampler,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	store, err := bootstrap.NewObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize gallery storage: %v", err)
	}
	sender, err := bootstrap.NewMailSender(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize mail sender: %v", err)
	}
	notify := bootstrap.NewNotifications(cfg, rdb, sender)

	srv, err := server.NewServer(cfg, server.Deps{
		DB:          db,
		Redis:       rdb,
		Store:       store,
		Dispatcher:  notify.Dispatcher,
		QueueStatus: notify.Status,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	middleware.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		middleware.Logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := notify.Close(); err != nil {
		middleware.Logger.Error("notification queue close error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		middleware.Logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
}
