// Package notifications fans membership events out to websocket clients through Redis pub/sub.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"clubhub/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "membership:user:"
	// AdminChannel carries events every connected administrator receives.
	AdminChannel = "membership:admins"
)

// Publisher is what services need to emit realtime events.
type Publisher interface {
	PublishUser(ctx context.Context, userID uint, event Event) error
	PublishAdmins(ctx context.Context, event Event) error
}

// Notifier publishes events into Redis channels. With a nil client every call is a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

func (n *Notifier) publish(ctx context.Context, channel string, event Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := event.encode()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// PublishUser sends event to every connection of userID.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, event Event) error {
	return n.publish(ctx, UserChannel(userID), event)
}

// PublishAdmins sends event to every connected administrator.
func (n *Notifier) PublishAdmins(ctx context.Context, event Event) error {
	return n.publish(ctx, AdminChannel, event)
}

// Subscribe listens on the user and admin channels until ctx is cancelled,
// calling onMessage for each payload. A panicking callback is logged and skipped.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(channel, payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", AdminChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to membership channels: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in membership subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// parseUserChannel returns the user id encoded in a per-user channel name.
func parseUserChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Emit publishes event to the user and, when toAdmins is set, to administrators.
// Failures are logged only; realtime delivery never fails a request.
func Emit(ctx context.Context, p Publisher, userID uint, toAdmins bool, event Event) {
	if p == nil {
		return
	}
	if userID != 0 {
		if err := p.PublishUser(ctx, userID, event); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to publish user event",
				slog.String("type", event.Type), slog.String("error", err.Error()))
		}
	}
	if toAdmins {
		if err := p.PublishAdmins(ctx, event); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to publish admin event",
				slog.String("type", event.Type), slog.String("error", err.Error()))
		}
	}
}
