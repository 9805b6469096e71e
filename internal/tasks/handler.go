package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clubhub/internal/mail"
	"clubhub/internal/observability"

	"github.com/hibiken/asynq"
)

// NotificationHandler sends the email described by a notification task.
type NotificationHandler struct {
	sender mail.Sender
	logger *slog.Logger
}

func NewNotificationHandler(sender mail.Sender, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{sender: sender, logger: logger}
}

// Deliver sends one intent. A disabled sender is not an error.
func (h *NotificationHandler) Deliver(ctx context.Context, intent NotificationIntent) error {
	sent, err := h.sender.Send(ctx, mail.Message{
		Template: intent.Template,
		To:       intent.To,
		Subject:  intent.Subject,
		Data:     intent.Data,
	})
	switch {
	case err != nil:
		observability.NotificationsTotal.WithLabelValues(intent.Template, "failed").Inc()
		return fmt.Errorf("deliver %s notification: %w", intent.Template, err)
	case !sent:
		observability.NotificationsTotal.WithLabelValues(intent.Template, "skipped").Inc()
	default:
		observability.NotificationsTotal.WithLabelValues(intent.Template, "sent").Inc()
		h.logger.InfoContext(ctx, "notification sent",
			slog.String("template", intent.Template),
			slog.String("request_id", intent.RequestID))
	}
	return nil
}

// ProcessTask implements asynq.Handler. Failures are logged and archived, never retried.
func (h *NotificationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	intent, err := ParseNotificationTask(t)
	if err != nil {
		h.logger.ErrorContext(ctx, "discarding malformed notification task", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := h.Deliver(ctx, intent); err != nil {
		h.logger.ErrorContext(ctx, "notification delivery failed",
			slog.String("template", intent.Template),
			slog.String("request_id", intent.RequestID),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

// MetricsMiddleware records processing outcome and latency per task type.
func MetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)
			status := "success"
			if err != nil {
				status = "error"
			}
			observability.TaskProcessed.WithLabelValues(task.Type(), status).Inc()
			observability.TaskDuration.WithLabelValues(task.Type()).Observe(time.Since(start).Seconds())
			return err
		})
	}
}

// NewServeMux wires the notification handler behind the metrics middleware.
func NewServeMux(h *NotificationHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(MetricsMiddleware())
	mux.Handle(TypeNotificationEmail, h)
	return mux
}
