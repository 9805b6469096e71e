package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"clubhub/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Aside implements cache-aside for JSON-encodable values. On a hit dest is
// decoded from Redis; on a miss load fills dest and the result is stored for
// ttl. Redis failures degrade to calling load directly.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, load func() error) error {
	rdb := GetClient()
	if rdb == nil {
		return load()
	}

	raw, err := rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
		rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := load(); err != nil {
		return err
	}

	encoded, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := rdb.Set(ctx, key, encoded, ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}
