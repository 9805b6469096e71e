package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	userKeyFormat  = "user:%d"
	RecruitmentKey = "recruitment:status"
	MemberStatsKey = "users:stats"
)

const (
	UserTTL        = 5 * time.Minute
	RecruitmentTTL = 30 * time.Second
	StatsTTL       = time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(userKeyFormat, userID)
}

// Invalidate deletes keys; it is a no-op without Redis.
func Invalidate(ctx context.Context, keys ...string) {
	rdb := GetClient()
	if rdb == nil || len(keys) == 0 {
		return
	}
	rdb.Del(ctx, keys...)
}

// InvalidateUser drops the cached user and the member statistics derived from it.
func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID), MemberStatsKey)
}

// InvalidateRecruitment drops the cached recruitment status.
func InvalidateRecruitment(ctx context.Context) {
	Invalidate(ctx, RecruitmentKey)
}
