package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"clubhub/internal/middleware"
	"clubhub/internal/observability"

	"github.com/hibiken/asynq"
)

// Dispatcher hands a notification intent to a background consumer.
// Callers log a returned error and carry on; delivery never blocks or fails a request.
type Dispatcher interface {
	Enqueue(ctx context.Context, intent NotificationIntent) error
}

// Notify enqueues intent on d and logs any failure. A nil dispatcher drops the intent.
func Notify(ctx context.Context, d Dispatcher, intent NotificationIntent) {
	if d == nil {
		return
	}
	intent.RequestID = observability.ExtractRequestID(ctx)
	if err := d.Enqueue(ctx, intent); err != nil {
		observability.NotificationsTotal.WithLabelValues(intent.Template, "enqueue_failed").Inc()
		middleware.Logger.WarnContext(ctx, "failed to enqueue notification",
			slog.String("template", intent.Template),
			slog.String("error", err.Error()))
		return
	}
	observability.NotificationsTotal.WithLabelValues(intent.Template, "enqueued").Inc()
}

// AsynqDispatcher publishes intents to Redis for cmd/worker.
type AsynqDispatcher struct {
	client *asynq.Client
}

// NewAsynqDispatcher returns a dispatcher backed by an asynq client on opt.
func NewAsynqDispatcher(opt asynq.RedisConnOpt) *AsynqDispatcher {
	return &AsynqDispatcher{client: asynq.NewClient(opt)}
}

func (d *AsynqDispatcher) Enqueue(ctx context.Context, intent NotificationIntent) error {
	task, err := NewNotificationTask(intent)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task)
	return err
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// ErrQueueFull is returned by InlineDispatcher when its buffer is exhausted.
var ErrQueueFull = errors.New("notification queue full")

// ErrDispatcherClosed is returned after Close.
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

// InlineDispatcher delivers intents from a bounded in-process queue on a single
// goroutine. It is used when Redis is unavailable and in tests.
type InlineDispatcher struct {
	handle func(context.Context, NotificationIntent) error

	mu     sync.RWMutex
	closed bool
	queue  chan NotificationIntent
	done   chan struct{}
}

// NewInlineDispatcher starts the consumer goroutine. handle receives a background context.
func NewInlineDispatcher(buffer int, handle func(context.Context, NotificationIntent) error) *InlineDispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &InlineDispatcher{
		handle: handle,
		queue:  make(chan NotificationIntent, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *InlineDispatcher) run() {
	defer close(d.done)
	for intent := range d.queue {
		if err := d.handle(context.Background(), intent); err != nil {
			observability.LogTaskFailure(context.Background(), "notification", err,
				slog.String("template", intent.Template), slog.String("request_id", intent.RequestID))
		}
	}
}

// Enqueue never blocks; a full buffer drops the intent.
func (d *InlineDispatcher) Enqueue(_ context.Context, intent NotificationIntent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- intent:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting intents and waits until queued ones are handled.
func (d *InlineDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
	return nil
}
