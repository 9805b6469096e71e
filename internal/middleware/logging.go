package middleware

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"clubhub/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. It is also installed as slog's default.
var Logger *slog.Logger

func init() {
	Logger = observability.NewLogger(os.Stdout, os.Getenv("APP_ENV"), observability.ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(Logger)
}

// ContextMiddleware copies the request ID from Fiber locals into the request
// context so service-layer logs carry it.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			c.SetUserContext(context.WithValue(c.UserContext(), observability.RequestIDKey, rid))
		}
		return c.Next()
	}
}

// quietPaths are probed constantly and only logged when they fail.
var quietPaths = []string{"/health", "/metrics"}

// StructuredLogger logs one line per request: 5xx at error, 4xx at warn, the rest at info.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Path()
		if status < 400 {
			for _, p := range quietPaths {
				if strings.HasPrefix(path, p) {
					return err
				}
			}
		}

		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", path),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		if route := c.Route(); route != nil && route.Path != path {
			attrs = append(attrs, slog.String("route", route.Path))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		ctx := c.UserContext()
		switch {
		case status >= 500:
			Logger.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			Logger.WarnContext(ctx, "request rejected", attrs...)
		default:
			Logger.InfoContext(ctx, "request processed", attrs...)
		}
		return err
	}
}
