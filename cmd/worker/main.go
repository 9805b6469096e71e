// Command worker delivers queued notification emails.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"clubhub/internal/bootstrap"
	"clubhub/internal/cache"
	"clubhub/internal/config"
	"clubhub/internal/middleware"
	"clubhub/internal/observability"
	"clubhub/internal/tasks"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the notification worker")
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "clubhub-worker",
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
	defer func() { _ = shutdownTracing(context.Background()) }()

	opts, err := cache.ParseOptions(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}

	sender, err := bootstrap.NewMailSender(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize mail sender: %v", err)
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     opts.Addr,
			Username: opts.Username,
			Password: opts.Password,
			DB:       opts.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{tasks.QueueNotifications: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				middleware.Logger.ErrorContext(ctx, "notification task failed",
					slog.String("type", task.Type()),
					slog.String("error", err.Error()))
			}),
		},
	)

	mux := tasks.NewServeMux(tasks.NewNotificationHandler(sender, middleware.Logger))

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		middleware.Logger.Info("shutting down notification worker")
		srv.Shutdown()
	}()

	middleware.Logger.Info("notification worker started", slog.String("queue", tasks.QueueNotifications))
	if err := srv.Run(mux); err != nil {
		log.Fatalf("worker stopped: %v", err)
	}
}
