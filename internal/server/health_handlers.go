package server

import (
	"context"
	"time"

	"clubhub/internal/database"
	"clubhub/internal/mail"
	"clubhub/internal/middleware"
	"clubhub/internal/models"
	"clubhub/internal/tasks"

	"github.com/gofiber/fiber/v2"
)

// HealthStatus is the readiness probe body.
type HealthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// LivenessCheck godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health/live [get]
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) dependencyStatus(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	services := map[string]string{"database": "up", "redis": "disabled"}
	if err := database.Ping(ctx, s.db); err != nil {
		services["database"] = "down"
	}
	if s.redis != nil {
		services["redis"] = "up"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			services["redis"] = "down"
		}
	}
	return services
}

// ReadinessCheck godoc
// @Summary Readiness probe
// @Description Pings the database and Redis.
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	services := s.dependencyStatus(c.UserContext())
	status := HealthStatus{Status: "healthy", Services: services}
	for _, v := range services {
		if v == "down" {
			status.Status = "unhealthy"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
	}
	return c.JSON(status)
}

// SystemStatus godoc
// @Summary Operational status for admins
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/system-status [get]
func (s *Server) SystemStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()
	queue := "disabled"
	if s.queueStatus != nil {
		queue = s.queueStatus(ctx)
	}
	connections := 0
	if s.hub != nil {
		connections = s.hub.ConnectionCount()
	}
	recruitment, err := s.applications.Status(ctx)
	if err != nil {
		return mapServiceError(c, err)
	}
	stats, err := s.membership.Stats(ctx)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"environment":           s.config.Env,
		"services":              s.dependencyStatus(ctx),
		"notification_queue":    queue,
		"gallery_storage":       s.store.Backend(),
		"websocket_connections": connections,
		"recruitment":           recruitment,
		"members":               stats,
		"checked_at":            time.Now().UTC(),
	})
}

// GetFeatureFlags godoc
// @Summary Feature flag snapshot for the caller
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /api/admin/feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(s.featureFlags.Snapshot(currentUser(c).ID))
}

// SendTestEmail godoc
// @Summary Queue a welcome email to the calling admin
// @Description Verifies the notification pipeline end to end.
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 503 {object} models.ErrorResponse
// @Router /api/admin/test-email [post]
func (s *Server) SendTestEmail(c *fiber.Ctx) error {
	if s.dispatcher == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			&models.AppError{Code: models.CodeInternal, Message: "Notification queue is not configured"})
	}
	user := currentUser(c)
	reqID, _ := c.Locals("requestid").(string)
	intent := tasks.NotificationIntent{
		Template: mail.TemplateWelcome,
		To:       user.Email,
		Data: map[string]string{
			"real_name": user.RealName,
			"username":  user.Username,
			"email":     user.Email,
		},
		RequestID: reqID,
	}
	if err := s.dispatcher.Enqueue(c.UserContext(), intent); err != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "test email enqueue failed", "error", err)
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			&models.AppError{Code: models.CodeInternal, Message: "Failed to queue test email"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "to": user.Email})
}
