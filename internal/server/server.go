// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "clubhub/docs" // swagger docs
	"clubhub/internal/auth"
	"clubhub/internal/config"
	"clubhub/internal/featureflags"
	"clubhub/internal/middleware"
	"clubhub/internal/models"
	"clubhub/internal/notifications"
	"clubhub/internal/repository"
	"clubhub/internal/service"
	"clubhub/internal/storage"
	"clubhub/internal/tasks"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	httpMetricsOnce sync.Once
	httpMetrics     *fiberprometheus.FiberPrometheus
)

// metricsMiddleware returns the process-wide HTTP collector set; Prometheus
// rejects registering the same collectors twice.
func metricsMiddleware() *fiberprometheus.FiberPrometheus {
	httpMetricsOnce.Do(func() {
		httpMetrics = fiberprometheus.New("clubhub-api")
	})
	return httpMetrics
}

// Deps are the runtime collaborators a Server is built from.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Store holds gallery media. Required.
	Store storage.ObjectStore
	// Dispatcher receives notification intents. A nil Dispatcher drops them.
	Dispatcher tasks.Dispatcher
	// QueueStatus reports the notification backend for the system-status endpoint.
	QueueStatus func(ctx context.Context) string
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	credentials  *auth.Credentials
	featureFlags *featureflags.Manager
	store        storage.ObjectStore
	dispatcher   tasks.Dispatcher
	queueStatus  func(ctx context.Context) string
	notifier     *notifications.Notifier
	hub          *notifications.Hub

	membership   *service.MembershipService
	applications *service.ApplicationService
	posts        *service.PostService
	comments     *service.CommentService
	gallery      *service.GalleryService
}

// NewServer wires repositories and services on top of deps.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("gallery storage is required")
	}
	creds, err := auth.NewCredentials(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}

	db := deps.DB
	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	formRepo := repository.NewFormRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	galleryRepo := repository.NewGalleryRepository(db)

	s := &Server{
		config:       cfg,
		db:           db,
		redis:        deps.Redis,
		credentials:  creds,
		featureFlags: featureflags.NewManager(cfg.FeatureFlags),
		store:        deps.Store,
		dispatcher:   deps.Dispatcher,
		queueStatus:  deps.QueueStatus,
	}

	var events notifications.Publisher
	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
		s.hub = notifications.NewHub()
		if s.featureFlags.On(featureflags.RealtimeEvents) {
			events = s.notifier
		}
	}

	s.membership = service.NewMembershipService(db, userRepo, appRepo, creds, deps.Dispatcher, events, deps.Store)
	s.applications = service.NewApplicationService(db, userRepo, appRepo, formRepo,
		service.NewStoredCounter(formRepo), creds, deps.Dispatcher, events)
	s.posts = service.NewPostService(postRepo, s.featureFlags)
	s.comments = service.NewCommentService(commentRepo, postRepo, s.featureFlags)
	s.gallery = service.NewGalleryService(db, galleryRepo, deps.Store, s.featureFlags,
		int64(cfg.GalleryMaxFileMB)<<20)
	return s, nil
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "clubhub API",
		BodyLimit:    64 << 20,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	s.promMiddleware = metricsMiddleware()
	s.promMiddleware.RegisterAt(app, "/metrics")
	app.Use(s.promMiddleware.Middleware)

	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	app.Get("/swagger/*", swagger.HandlerDefault)
	if local, ok := s.store.(*storage.LocalStore); ok {
		app.Static("/static/gallery", local.Root())
	}

	api := app.Group("/api")
	api.Get("/", s.ReadinessCheck)

	authed := middleware.AuthRequired(s.credentials, s.membership)
	optional := middleware.OptionalAuth(s.credentials, s.membership)
	active := middleware.ActiveRequired()
	admin := middleware.AdminRequired()

	authGroup := api.Group("/auth")
	authGroup.Post("/register", middleware.RateLimit(s.redis, 5, 10*time.Minute, "register"), s.Register)
	authGroup.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/integrated-application",
		middleware.RateLimit(s.redis, 3, 10*time.Minute, "integrated_application"), s.SubmitIntegratedApplication)
	authGroup.Get("/me", authed, s.GetMe)

	form := api.Group("/application-form")
	form.Get("/", s.GetApplicationForm)
	form.Put("/", authed, admin, s.UpdateApplicationForm)
	form.Get("/questions", s.GetFormQuestions)
	form.Put("/questions", authed, admin, s.UpdateFormQuestions)
	form.Get("/status", s.GetRecruitmentStatus)
	form.Post("/reset-applicants", authed, admin, s.ResetApplicants)

	apps := api.Group("/applications", authed)
	apps.Post("/", s.CreateApplication)
	apps.Get("/my", s.GetMyApplication)
	apps.Get("/", admin, s.ListApplications)
	apps.Get("/:id", admin, s.GetApplication)
	apps.Put("/:id", admin, s.ReviewApplication)
	apps.Delete("/:id", admin, s.DeleteApplication)

	users := api.Group("/users", authed)
	users.Get("/", admin, s.ListUsers)
	users.Get("/pending", admin, s.ListPendingUsers)
	users.Get("/stats", admin, s.GetUserStats)
	users.Put("/me", s.UpdateMyProfile)
	users.Put("/me/password", s.ChangeMyPassword)
	users.Delete("/me", s.DeleteMyAccount)
	users.Post("/:id/approve", admin, s.ApproveUser)
	users.Post("/:id/reject", admin, s.RejectUser)
	users.Put("/:id/role", admin, s.UpdateUserRole)
	users.Delete("/:id", admin, s.SoftDeleteUser)

	posts := api.Group("/posts")
	posts.Get("/", optional, s.ListPosts)
	posts.Get("/:id/comments", s.ListComments)
	posts.Post("/:id/comments", authed, active,
		middleware.RateLimit(s.redis, 10, time.Minute, "create_comment"), s.CreateComment)
	posts.Post("/:id/pin", authed, admin, s.TogglePin)
	posts.Get("/:id", authed, active, s.GetPost)
	posts.Post("/", authed, active, middleware.RateLimit(s.redis, 5, time.Minute, "create_post"), s.CreatePost)
	posts.Put("/:id", authed, active, s.UpdatePost)
	posts.Delete("/:id", authed, active, s.DeletePost)

	comments := api.Group("/comments", authed, active)
	comments.Put("/:id", s.UpdateComment)
	comments.Delete("/:id", s.DeleteComment)

	gallery := api.Group("/gallery")
	gallery.Get("/", s.ListAlbums)
	gallery.Get("/:id", authed, active, s.GetAlbum)
	gallery.Post("/", authed, admin, s.CreateAlbum)
	gallery.Delete("/:id", authed, active, s.DeleteAlbum)

	adminGroup := api.Group("/admin", authed, admin)
	adminGroup.Get("/system-status", s.SystemStatus)
	adminGroup.Get("/feature-flags", s.GetFeatureFlags)
	adminGroup.Post("/test-email", s.SendTestEmail)

	api.Get("/ws", authed, s.WebsocketHandler())
}

// Start serves HTTP on the configured port and wires the websocket hub to Redis.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier != nil && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	if s.config.RateLimitBypassed() {
		middleware.Logger.Info("rate limiting disabled", slog.String("env", s.config.Env))
	}
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
