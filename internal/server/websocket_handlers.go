package server

import (
	"context"
	"log/slog"

	"clubhub/internal/middleware"
	"clubhub/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler streams membership events to the authenticated user.
// Admins also receive admin-channel events. The token may be passed as ?token=.
// @Summary Membership event stream
// @Tags realtime
// @Param token query string false "Bearer token"
// @Router /api/ws [get]
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		user, _ := conn.Locals("user").(*models.User)
		if user == nil || s.hub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(context.Background(), user.ID, user.IsAdmin, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration refused",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if s.hub == nil {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				&models.AppError{Code: models.CodeInternal, Message: "Realtime events are not available"})
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return upgrade(c)
	}
}
