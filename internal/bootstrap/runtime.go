// Package bootstrap assembles the process-level dependencies shared by the
// server, worker and admin binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clubhub/internal/auth"
	"clubhub/internal/cache"
	"clubhub/internal/config"
	"clubhub/internal/database"
	"clubhub/internal/mail"
	"clubhub/internal/middleware"
	"clubhub/internal/repository"
	"clubhub/internal/service"
	"clubhub/internal/storage"
	"clubhub/internal/tasks"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs migrations according to DB_SCHEMA_MODE before returning.
	ApplySchema bool
}

// InitRuntime connects to the database and Redis. Redis is optional: a nil
// client means caching, rate limiting and realtime events are off.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.ApplySchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	rdb := cache.InitRedis(cfg.RedisURL)

	if err := ensureDevRootAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}
	return db, rdb, nil
}

// NewMembershipService builds a MembershipService without notification or
// storage side effects, for operator tooling.
func NewMembershipService(cfg *config.Config, db *gorm.DB) (*service.MembershipService, error) {
	creds, err := auth.NewCredentials(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}
	return service.NewMembershipService(db,
		repository.NewUserRepository(db),
		repository.NewApplicationRepository(db),
		creds, nil, nil, nil), nil
}

// ensureDevRootAdmin creates the configured administrator in development.
func ensureDevRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil || !strings.EqualFold(cfg.Env, "development") {
		return nil
	}
	email := strings.TrimSpace(cfg.DevRootAdminEmail)
	if email == "" {
		return nil
	}
	if cfg.DevRootAdminPassword == "" {
		return fmt.Errorf("DEV_ROOT_ADMIN_PASSWORD must be set when DEV_ROOT_ADMIN_EMAIL is")
	}

	membership, err := NewMembershipService(cfg, db)
	if err != nil {
		return err
	}
	user, created, err := membership.EnsureAdmin(ctx, email, cfg.DevRootAdminPassword)
	if err != nil {
		return err
	}
	middleware.Logger.Info("development root admin ensured",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("email", user.Email),
		slog.Bool("created", created))
	return nil
}

// NewObjectStore returns the gallery backend selected by GALLERY_STORAGE.
func NewObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.GalleryStorage == "minio" {
		store, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := storage.NewLocalStore(cfg.GalleryPath, "/static/gallery")
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMailSender returns the SMTP sender. A disabled sender reports false for every message.
func NewMailSender(cfg *config.Config) (mail.Sender, error) {
	sender, err := mail.NewSMTPSender(mail.Config{
		Enabled:  cfg.MailEnabled,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		Club:     cfg.ClubName,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// Notifications is the producer side of the notification queue.
type Notifications struct {
	Dispatcher tasks.Dispatcher
	// Status describes the backend for the admin system-status endpoint.
	Status func(ctx context.Context) string
	Close  func() error
}

// NewNotifications picks the asynq queue when NOTIFY_QUEUE=asynq and Redis is
// reachable, and otherwise delivers in-process through sender.
func NewNotifications(cfg *config.Config, rdb *redis.Client, sender mail.Sender) Notifications {
	if cfg.NotifyQueue != "inline" && rdb != nil {
		opt := asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Username: rdb.Options().Username,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		}
		d := tasks.NewAsynqDispatcher(opt)
		inspector := asynq.NewInspector(opt)
		return Notifications{
			Dispatcher: d,
			Status: func(context.Context) string {
				info, err := inspector.GetQueueInfo(tasks.QueueNotifications)
				if err != nil {
					return "asynq: unavailable"
				}
				return fmt.Sprintf("asynq: %d pending, %d failed today", info.Pending, info.Failed)
			},
			Close: func() error {
				_ = inspector.Close()
				return d.Close()
			},
		}
	}

	if cfg.NotifyQueue != "inline" {
		middleware.Logger.Warn("redis unavailable, delivering notifications in-process")
	}
	handler := tasks.NewNotificationHandler(sender, middleware.Logger)
	d := tasks.NewInlineDispatcher(256, handler.Deliver)
	return Notifications{
		Dispatcher: d,
		Status:     func(context.Context) string { return "inline" },
		Close:      d.Close,
	}
}
