package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"clubhub/internal/models"
	"clubhub/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	// FailClosed answers 503 instead of serving the request.
	FailClosed
)

var errNoLimiterStore = errors.New("rate limit store unavailable")

// fixedWindow increments the counter and starts its window on the first hit,
// atomically, and returns the count and the window's remaining milliseconds.
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// limiterBypassed mirrors config.RateLimitBypassed; an unset APP_ENV is development.
func limiterBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// CheckRateLimit counts one request by subject against action's budget of
// limit requests per window.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, action, subject string, limit int, window time.Duration) (Decision, error) {
	if limiterBypassed() {
		return Decision{Allowed: true, Remaining: limit}, nil
	}
	if rdb == nil {
		return Decision{}, errNoLimiterStore
	}

	key := fmt.Sprintf("clubhub:rl:%s:%s", action, subject)
	res, err := fixedWindow.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("rate_limit").Inc()
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	d := Decision{Allowed: count <= int64(limit), Remaining: max(limit-int(count), 0)}
	if !d.Allowed {
		d.RetryAfter = max(ttl, time.Second)
	}
	return d, nil
}

// RateLimit allows limit requests per window for each caller, keyed by user
// when authenticated and by client IP otherwise. It fails open.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit Redis failure policy.
// The optional name groups routes under one budget; it defaults to the path.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		action := c.Path()
		if len(name) > 0 && name[0] != "" {
			action = name[0]
		}
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals(localUserID).(uint); ok {
			subject = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		d, err := CheckRateLimit(c.UserContext(), rdb, action, subject, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limiter unavailable, refusing request",
					"action", action, "error", err)
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					&models.AppError{Code: models.CodeInternal, Message: "Service temporarily unavailable"})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			observability.RateLimitRejections.WithLabelValues(action).Inc()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later",
				Code:  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
