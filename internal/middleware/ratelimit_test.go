package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiterRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit_Bypass(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		t.Run("env="+env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			d, err := CheckRateLimit(context.Background(), nil, "login", "ip:1", 1, time.Minute)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 1, d.Remaining)
		})
	}
}

func TestCheckRateLimit_Production(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	t.Run("nil redis is an error", func(t *testing.T) {
		_, err := CheckRateLimit(context.Background(), nil, "login", "ip:1", 1, time.Minute)
		assert.ErrorIs(t, err, errNoLimiterStore)
	})

	t.Run("counts within a window", func(t *testing.T) {
		mr, rdb := newLimiterRedis(t)
		ctx := context.Background()

		d, err := CheckRateLimit(ctx, rdb, "login", "ip:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, Decision{Allowed: true, Remaining: 1}, d)

		d, err = CheckRateLimit(ctx, rdb, "login", "ip:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)

		d, err = CheckRateLimit(ctx, rdb, "login", "ip:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Greater(t, d.RetryAfter, time.Duration(0))
		assert.LessOrEqual(t, d.RetryAfter, time.Minute)
		assert.Greater(t, mr.TTL("clubhub:rl:login:ip:1.2.3.4"), time.Duration(0))

		other, err := CheckRateLimit(ctx, rdb, "register", "ip:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, other.Allowed, "budgets are per action")
	})

	t.Run("window expiry resets the budget", func(t *testing.T) {
		mr, rdb := newLimiterRedis(t)
		ctx := context.Background()

		_, err := CheckRateLimit(ctx, rdb, "login", "user:7", 1, time.Minute)
		require.NoError(t, err)
		d, err := CheckRateLimit(ctx, rdb, "login", "user:7", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, d.Allowed)

		mr.FastForward(61 * time.Second)
		d, err = CheckRateLimit(ctx, rdb, "login", "user:7", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	t.Run("bypassed in test mode", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		app := fiber.New()
		app.Get("/test", RateLimit(nil, 1, time.Minute), handler)

		for range 3 {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			_ = resp.Body.Close()
		}
	})

	t.Run("fails open without redis", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		app := fiber.New()
		app.Get("/test", RateLimit(nil, 1, time.Minute), handler)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("fails closed when asked to", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		app := fiber.New()
		app.Get("/sensitive", RateLimitWithPolicy(nil, 1, time.Minute, FailClosed), handler)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sensitive", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("429 with retry headers once the budget is spent", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		_, rdb := newLimiterRedis(t)

		app := fiber.New()
		app.Post("/auth/login", RateLimit(rdb, 1, time.Minute, "login"), handler)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
		_ = resp.Body.Close()

		resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))
		_ = resp.Body.Close()
	})

	t.Run("authenticated users get their own budget", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		_, rdb := newLimiterRedis(t)

		app := fiber.New()
		app.Use(func(c *fiber.Ctx) error {
			if id := c.Get("X-Test-User"); id != "" {
				c.Locals(localUserID, uint(len(id)))
			}
			return c.Next()
		})
		app.Post("/posts", RateLimit(rdb, 1, time.Minute, "create_post"), handler)

		send := func(user string) int {
			req := httptest.NewRequest(http.MethodPost, "/posts", nil)
			req.Header.Set("X-Test-User", user)
			resp, err := app.Test(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			return resp.StatusCode
		}
		assert.Equal(t, http.StatusOK, send("a"))
		assert.Equal(t, http.StatusTooManyRequests, send("b"), "same user id")
		assert.Equal(t, http.StatusOK, send("ab"), "different user id")
	})
}
